package integration

import (
	"fmt"
	"sync/atomic"
)

var accountCounter atomic.Int64

// TestAccount holds credentials for a test user.
type TestAccount struct {
	Name     string
	Email    string
	Password string
}

// UniqueTestAccount returns credentials that will not collide with accounts
// created by other tests in the same run.
func UniqueTestAccount() TestAccount {
	n := accountCounter.Add(1)
	return TestAccount{
		Name:     fmt.Sprintf("Test User %d", n),
		Email:    fmt.Sprintf("user%d@integration.test", n),
		Password: "Sup3r-Secret-Pass!",
	}
}
