package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           factod API
// @version         1.0
// @description     HTTP API for compiling circuit programs into blueprint exchange strings.
//
// @contact.name   factod maintainers
// @contact.url    https://github.com/your-org/factod
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
