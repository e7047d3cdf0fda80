// cmd/offer submits a data offer to a running relay, and can optionally top
// up a provider's prepaid gas funds first.
//
// The offer's sender address is derived from the wallet key in
// OFFER_SIGNING_KEY; that wallet must have approved the relay on the payment
// token beforehand.
//
// Usage:
//
//	OFFER_SIGNING_KEY=0x<key> \
//	go run ./cmd/offer/ \
//	  --relay    http://localhost:8080 \
//	  --commp    aaaa...aa \
//	  --size     2048 \
//	  --location https://example.com/piece.car \
//	  --amount   1000000 \
//	  --token    0x... \
//	  --gas-provider t01000 \
//	  --gas-amount   500
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

func main() {
	relay := flag.String("relay", "http://localhost:8080", "Relay base URL")
	commP := flag.String("commp", "", "Piece commitment (64 hex chars)")
	size := flag.Uint64("size", 0, "Padded piece size in bytes")
	location := flag.String("location", "", "URL the piece can be fetched from")
	amount := flag.String("amount", "", "Escrow amount in token base units")
	token := flag.String("token", "", "ERC-20 payment token address")
	gasProvider := flag.String("gas-provider", "", "Provider to credit gas funds to (optional)")
	gasAmount := flag.String("gas-amount", "", "Gas funds amount (required with --gas-provider)")
	flag.Parse()

	keyHex := strings.TrimPrefix(os.Getenv("OFFER_SIGNING_KEY"), "0x")
	if keyHex == "" {
		fmt.Fprintln(os.Stderr, "error: OFFER_SIGNING_KEY not set")
		os.Exit(1)
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: parse signing key: %v\n", err)
		os.Exit(1)
	}
	sender := crypto.PubkeyToAddress(key.PublicKey)

	if *commP == "" || *size == 0 || *location == "" || *amount == "" || *token == "" {
		fmt.Fprintln(os.Stderr, "error: --commp, --size, --location, --amount and --token are required")
		os.Exit(1)
	}

	client := &http.Client{Timeout: 30 * time.Second}

	if *gasProvider != "" {
		if *gasAmount == "" {
			fmt.Fprintln(os.Stderr, "error: --gas-amount required with --gas-provider")
			os.Exit(1)
		}
		body := map[string]string{
			"provider": *gasProvider,
			"amount":   *gasAmount,
			"value":    *gasAmount,
		}
		resp := post(client, *relay+"/v1/gasfunds", body)
		fmt.Printf("gas funds:  %s\n", resp)
	}

	offer := map[string]any{
		"sender":   sender.Hex(),
		"commp":    *commP,
		"size":     *size,
		"location": *location,
		"amount":   *amount,
		"token":    *token,
	}
	resp := post(client, *relay+"/v1/offers", offer)
	fmt.Printf("offer:      %s\n", resp)
}

func post(client *http.Client, url string, body any) string {
	raw, err := json.Marshal(body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: encode request: %v\n", err)
		os.Exit(1)
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s: %v\n", url, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		fmt.Fprintf(os.Stderr, "error: %s: %d: %s\n", url, resp.StatusCode, out)
		os.Exit(1)
	}
	return strings.TrimSpace(string(out))
}
