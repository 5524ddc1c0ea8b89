package utils

import (
	"log"
	"os"
)

// GetLogger builds the process-wide logger handed to every component.
func GetLogger() *log.Logger {
	logger := log.New(os.Stdout, "INFO: ", log.Ldate|log.Ltime|log.Lshortfile)
	return logger
}
