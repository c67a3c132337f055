package stores_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/thomyg/TeamsFx/pkg/stores"
)

// ExampleOpen demonstrates opening a migrated history store.
func ExampleOpen() {
	dir, err := os.MkdirTemp("", "fx-history")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	store, err := stores.Open(context.Background(), stores.Config{
		Path: filepath.Join(dir, "history.db"),
	})
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	fmt.Println("Store initialized successfully")
	// Output: Store initialized successfully
}

// ExampleSQLiteStore_StartOperation records an operation and its outcome.
func ExampleSQLiteStore_StartOperation() {
	dir, _ := os.MkdirTemp("", "fx-history")
	defer os.RemoveAll(dir)

	ctx := context.Background()
	store, err := stores.Open(ctx, stores.Config{Path: filepath.Join(dir, "history.db")})
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	started := time.Now()
	_ = store.StartOperation(ctx, &stores.OperationRecord{
		ID:        "op-001",
		Name:      "provision",
		Env:       "dev",
		StartedAt: started,
	})
	_ = store.CompleteOperation(ctx, "op-001", stores.OperationCompletion{
		Status:      stores.OperationStatusSucceeded,
		CompletedAt: started.Add(2 * time.Second),
	})

	op, _ := store.GetOperation(ctx, "op-001")
	fmt.Println(op.Name, op.Status, op.Duration)
	// Output: provision succeeded 2s
}
