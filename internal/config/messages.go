package config

import "fmt"

const (
	errRequiredEnvNotSetFmt = "required environment variable %s is not set"
	errInvalidURLFmt        = "%s must be an http or https URL, got %q"
	errInvalidRouteFmt      = "invalid route %q: want name=path or name=path=Role1|Role2"
	errDuplicateRouteFmt    = "route %q declared twice"
	errRoutePathTakenFmt    = "route %q cannot use path %q: %s"
)

type messageBuilders struct {
	requiredEnvNotSet func(string) string
	invalidURL        func(key, value string) string
	invalidRoute      func(string) string
	duplicateRoute    func(string) string
	routePathTaken    func(name, path, owner string) string
}

func newMessageBuilders() messageBuilders {
	return messageBuilders{
		requiredEnvNotSet: func(key string) string {
			return fmt.Sprintf(errRequiredEnvNotSetFmt, key)
		},
		invalidURL: func(key, value string) string {
			return fmt.Sprintf(errInvalidURLFmt, key, value)
		},
		invalidRoute: func(entry string) string {
			return fmt.Sprintf(errInvalidRouteFmt, entry)
		},
		duplicateRoute: func(name string) string {
			return fmt.Sprintf(errDuplicateRouteFmt, name)
		},
		routePathTaken: func(name, path, owner string) string {
			return fmt.Sprintf(errRoutePathTakenFmt, name, path, owner)
		},
	}
}

var messages = newMessageBuilders()
