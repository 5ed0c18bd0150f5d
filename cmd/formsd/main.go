// Command formsd serves the forms API and runs its maintenance tasks
// (schema migration, order repair, form export/import, admin bootstrap).
//
// @title                      Forms API
// @version                    1.0
// @description                Back office, public and partner endpoints of the forms builder.
// @BasePath                   /api/v1
//
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
// @description                Type "Bearer" followed by a space and the JWT returned by /auth/login.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
