package main

import "solana-trade-ledger/internal/cli"

func main() {
	cli.Execute()
}
