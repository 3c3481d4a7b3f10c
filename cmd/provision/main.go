// Command provision creates the AuthTable and DataTable through the data
// service admin tier and optionally registers one user.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/jun/socialnet/internal/client"
	"github.com/jun/socialnet/internal/model"
)

func main() {
	dataURL := flag.String("data-url", envOr("DATA_SERVER_URL", "http://localhost:34568"), "data service base URL")
	userID := flag.String("user", "", "user id to provision")
	password := flag.String("password", "", "password of the user")
	partition := flag.String("partition", "", "partition of the user's social record, e.g. a country")
	row := flag.String("row", "", "row of the user's social record, e.g. a name")
	friends := flag.String("friends", "", "initial friend list, country;name pairs joined by |")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	opts := client.DefaultOptions()
	data := client.NewDataService(client.New("data", *dataURL, opts, zap.NewNop()))

	for _, table := range []string{model.AuthTable, model.DataTable} {
		created, err := data.CreateTable(ctx, table)
		if err != nil {
			log.Fatalf("Failed to create %s: %v", table, err)
		}
		fmt.Printf("%s: created=%t\n", table, created)
	}

	if *userID == "" {
		return
	}
	if *password == "" || *partition == "" || *row == "" {
		log.Fatal("-password, -partition and -row are required with -user")
	}

	cred := map[string]string{
		model.PropPassword:      *password,
		model.PropDataPartition: *partition,
		model.PropDataRow:       *row,
	}
	if err := data.UpdateEntityAdmin(ctx, model.AuthTable, model.CredentialPartition, *userID, cred); err != nil {
		log.Fatalf("Failed to write credentials for %s: %v", *userID, err)
	}

	record := map[string]string{
		model.PropFriends: *friends,
		model.PropStatus:  "",
		model.PropUpdates: "",
	}
	if err := data.UpdateEntityAdmin(ctx, model.DataTable, *partition, *row, record); err != nil {
		log.Fatalf("Failed to write social record %s/%s: %v", *partition, *row, err)
	}
	fmt.Printf("provisioned %s -> %s/%s\n", *userID, *partition, *row)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
