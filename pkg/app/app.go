// Package app holds the contract between cmd/* entrypoints and the process
// implementations under pkg/app/relay and pkg/app/resolver.
package app

// Runner is a process that blocks until shutdown.
type Runner interface {
	Run() error
}
