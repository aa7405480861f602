package telemetry

import (
	"context"
	"os"
	"testing"
)

var setupTestEnvironments = map[string]bool{}

// sets up telemetry in a testing environment, ensuring that it isn't
// set up more than once. if no telemetry.json5 can be found the test
// runs without exporters, which is fine for assertions.
func SetupForTesting(t testing.TB, serviceName string) func() {
	if setupTestEnvironments[serviceName] {
		return func() {}
	}
	setupTestEnvironments[serviceName] = true

	InitSlog(true)

	tel, err := SetupFromEnv(context.Background(), serviceName)
	if os.IsNotExist(err) {
		return func() {}
	}
	if err != nil {
		t.Fatal(err)
	}
	return func() {
		err := tel.Shutdown(context.Background())
		if err != nil {
			t.Fatal(err)
		}
	}
}
