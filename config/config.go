// Config loads configuration.
package config

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"
)

const Version = "1.0"

// GetInt loads the environment variable varName, converts it to an integer,
// and returns that integer or an error.
func GetInt(varName string) (int, error) {
	envVar := os.Getenv(varName)
	return strconv.Atoi(envVar)
}

// GetDurationMs loads the environment variable varName, interprets it as a
// number of milliseconds, and returns the resulting duration or an error.
func GetDurationMs(varName string) (time.Duration, error) {
	ms, err := GetInt(varName)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// GetBool returns true if the environment variable varName is set to the
// string "true", and false otherwise.
func GetBool(varName string) bool {
	return os.Getenv(varName) == "true"
}

func GetURLOrBail(urlEnvVar string) *url.URL {
	backendUrl := os.Getenv(urlEnvVar)
	if backendUrl == "" {
		log.Fatal(fmt.Errorf("No backend URL configured. Please set %s", urlEnvVar))
	}
	parsedUrl, err := url.Parse(backendUrl)
	if err != nil {
		log.Fatalf("Invalid backend url: %s. %s\n", backendUrl, err.Error())
	}
	return parsedUrl
}

// SetMaxIdleConnsPerHost sets the MaxIdleConnsPerHost value for the default
// HTTP transport. If you are using a custom transport, calling this function
// won't change anything.
func SetMaxIdleConnsPerHost(maxConns int) {
	http.DefaultTransport.(*http.Transport).MaxIdleConnsPerHost = maxConns
}
