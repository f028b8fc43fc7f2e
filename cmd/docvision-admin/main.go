package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "docvision server address")
	key := fs.String("key", os.Getenv("DOCVISION_ADMIN_KEY"), "admin key (or DOCVISION_ADMIN_KEY)")
	fs.Parse(os.Args[2:])

	switch cmd {
	case "costs":
		show(*addr+"/admin/costs", *key)
	case "usage":
		show(*addr+"/admin/usage", *key)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("docvision-admin commands:")
	fmt.Println("  costs     Show session vision-model spend")
	fmt.Println("  usage     Show request and cache-hit counters")
	fmt.Println("     flags: -addr -key")
}

func show(url, key string) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		log.Fatalf("build request: %v", err)
	}
	req.Header.Set("X-Admin-Key", key)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("server returned %d: %s", resp.StatusCode, body)
	}

	var pretty map[string]interface{}
	if err := json.Unmarshal(body, &pretty); err != nil {
		fmt.Println(string(body))
		return
	}
	out, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Println(string(out))
}
