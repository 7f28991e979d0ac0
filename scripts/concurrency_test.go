//go:build ignore
// +build ignore

// Package main provides a manual concurrency stress test for the lending API.
//
// Usage:
//
//	go run ./scripts/concurrency_test.go <book_id> <patron1> [patron2 ...]
//
// Or use the convenience environment variables:
//
//	BOOK_ID=<uuid>  PATRON_IDS=123456,234567,...  go run ./scripts/concurrency_test.go
//
// Every patron tries to borrow the same book at the same moment. The number of
// successful borrows must never exceed the copies that were available, and the
// book's available count afterwards must equal what was left.
//
// Prerequisites:
//   - Server must be running against a database with the book already added.
//   - Patron IDs must be six-digit card numbers, one per borrower.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

const defaultServerAddr = "http://localhost:8080"

type borrowResult struct {
	PatronID   string
	StatusCode int
	Message    string
	Err        error
}

type book struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	TotalCopies     int    `json:"total_copies"`
	AvailableCopies int    `json:"available_copies"`
}

func main() {
	serverAddr := os.Getenv("SERVER_ADDR")
	if serverAddr == "" {
		serverAddr = defaultServerAddr
	}

	bookID := os.Getenv("BOOK_ID")
	var patronIDs []string
	if v := os.Getenv("PATRON_IDS"); v != "" {
		patronIDs = strings.Split(v, ",")
	}
	if args := os.Args[1:]; len(args) >= 1 {
		bookID = args[0]
		if len(args) >= 2 {
			patronIDs = args[1:]
		}
	}

	if bookID == "" {
		log.Fatal("Usage: BOOK_ID=<uuid> PATRON_IDS=<p1,p2,...> go run ./scripts/concurrency_test.go\n" +
			"  or: go run ./scripts/concurrency_test.go <book_id> <patron1> [patron2 ...]")
	}
	if len(patronIDs) == 0 {
		log.Fatal("At least one patron ID must be provided via PATRON_IDS env or positional args")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	before, err := fetchBook(client, serverAddr, bookID)
	if err != nil {
		log.Fatalf("load book: %v", err)
	}

	fmt.Printf("=== Lending Concurrency Test ===\n")
	fmt.Printf("Server    : %s\n", serverAddr)
	fmt.Printf("Book      : %s (%q)\n", bookID, before.Title)
	fmt.Printf("Available : %d of %d\n", before.AvailableCopies, before.TotalCopies)
	fmt.Printf("Patrons   : %d\n\n", len(patronIDs))

	results := make([]borrowResult, len(patronIDs))
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i, pid := range patronIDs {
		wg.Add(1)
		go func(idx int, patronID string) {
			defer wg.Done()
			<-start
			results[idx] = attemptBorrow(client, serverAddr, bookID, patronID)
		}(i, strings.TrimSpace(pid))
	}

	fmt.Println("Firing all requests simultaneously...")
	close(start)
	wg.Wait()
	fmt.Println("All requests completed.")
	fmt.Println()

	var borrowed, refused, failures int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failures++
			fmt.Printf("  [ERR ] patron=%s err=%v\n", r.PatronID, r.Err)
		case r.StatusCode == http.StatusCreated:
			borrowed++
			fmt.Printf("  [LOAN] patron=%s %s\n", r.PatronID, r.Message)
		case r.StatusCode == http.StatusConflict:
			refused++
			fmt.Printf("  [BUSY] patron=%s %s\n", r.PatronID, r.Message)
		default:
			failures++
			fmt.Printf("  [FAIL] patron=%s status=%d %s\n", r.PatronID, r.StatusCode, r.Message)
		}
	}

	after, err := fetchBook(client, serverAddr, bookID)
	if err != nil {
		log.Fatalf("reload book: %v", err)
	}

	fmt.Printf("\n--- Summary ---\n")
	fmt.Printf("Borrowed : %d\n", borrowed)
	fmt.Printf("Refused  : %d\n", refused)
	fmt.Printf("Failures : %d\n", failures)
	fmt.Printf("Left     : %d\n\n", after.AvailableCopies)

	fmt.Println("--- Invariant Check ---")
	ok := true
	if borrowed > before.AvailableCopies {
		fmt.Printf("[FAIL] %d borrows succeeded but only %d copies were available\n", borrowed, before.AvailableCopies)
		ok = false
	}
	if after.AvailableCopies != before.AvailableCopies-borrowed {
		fmt.Printf("[FAIL] available copies is %d, expected %d\n", after.AvailableCopies, before.AvailableCopies-borrowed)
		ok = false
	}
	if ok {
		fmt.Println("[ OK ] borrows never exceeded available copies")
	}

	if !ok || failures > 0 {
		os.Exit(1)
	}
}

// attemptBorrow sends POST /books/{bookID}/borrow for one patron.
func attemptBorrow(client *http.Client, serverAddr, bookID, patronID string) borrowResult {
	url := fmt.Sprintf("%s/books/%s/borrow", serverAddr, bookID)
	body, _ := json.Marshal(map[string]string{"patron_id": patronID})

	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return borrowResult{PatronID: patronID, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return borrowResult{PatronID: patronID, StatusCode: resp.StatusCode, Err: fmt.Errorf("bad JSON: %s", raw)}
	}
	msg := parsed.Message
	if msg == "" {
		msg = parsed.Error
	}
	return borrowResult{PatronID: patronID, StatusCode: resp.StatusCode, Message: msg}
}

// fetchBook finds the book in GET /books.
func fetchBook(client *http.Client, serverAddr, bookID string) (book, error) {
	resp, err := client.Get(serverAddr + "/books")
	if err != nil {
		return book{}, err
	}
	defer resp.Body.Close()

	var books []book
	if err := json.NewDecoder(resp.Body).Decode(&books); err != nil {
		return book{}, err
	}
	for _, b := range books {
		if b.ID == bookID {
			return b, nil
		}
	}
	return book{}, fmt.Errorf("book %s not in catalog", bookID)
}
