// ops-token mints a service bearer token for the internal ops endpoints.
//
// Usage:
//
//	API_SECRET=... TOKEN_HOUR_LIFESPAN=24 go run ./cmd/ops-token
//
// The business id comes from OPS_BUSINESS_ID (default "default"), the role
// from OPS_ROLE (default admin).
package main

import (
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/stocktake_backend/models"
	"bitbucket.org/mmdatafocus/stocktake_backend/utils"
)

func main() {
	businessID := os.Getenv("OPS_BUSINESS_ID")
	if businessID == "" {
		businessID = "default"
	}
	role := os.Getenv("OPS_ROLE")
	if role == "" {
		role = string(models.UserRoleAdmin)
	}
	if os.Getenv("TOKEN_HOUR_LIFESPAN") == "" {
		os.Setenv("TOKEN_HOUR_LIFESPAN", "24")
	}

	token, err := utils.JwtGenerate(0, role, businessID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to mint token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
