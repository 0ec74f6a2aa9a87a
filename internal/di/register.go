package di

import "github.com/samber/do/v2"

// RegisterSingletons registers all service providers as singletons.
// Services are registered in dependency order:
// 1. Config (no dependencies)
// 2. Logger (depends on Config)
// 3. Transport (depends on Config, Logger)
// 4. Acquirer (depends on Config, Logger, Transport)
// 5. Fetcher (depends on all above).
func RegisterSingletons(i do.Injector) {
	do.Provide(i, NewConfig)
	do.Provide(i, NewLogger)
	do.Provide(i, NewTransport)
	do.Provide(i, NewAcquirer)
	do.Provide(i, NewFetcher)
}
