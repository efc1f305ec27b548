package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"marketd/config"
	"marketd/core"
	"marketd/crypto"
	"marketd/observability/logging"
	"marketd/rpc"
	"marketd/storage"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the TOML configuration file")
	inMemory := flag.Bool("mem", false, "run on an in-memory store instead of LevelDB")
	genKeyPath := flag.String("genkey", "", "generate an operator key, save it to the given file and exit")
	keyAddrPath := flag.String("keyaddr", "", "print the address of the key saved at the given file and exit")
	flag.Parse()

	if *genKeyPath != "" {
		addr, err := generateOperatorKey(*genKeyPath)
		if err != nil {
			slog.Error("failed to generate key", slog.String("error", err.Error()))
			os.Exit(1)
		}
		fmt.Printf("Generated new key and saved to %s\n", *genKeyPath)
		fmt.Printf("Operator address: %s\n", addr)
		return
	}
	if *keyAddrPath != "" {
		addr, err := keyAddress(*keyAddrPath)
		if err != nil {
			slog.Error("failed to read key", slog.String("error", err.Error()))
			os.Exit(1)
		}
		fmt.Println(addr)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := logging.Setup("marketd", cfg.Environment)

	var db storage.Database
	if *inMemory {
		db = storage.NewMemDB()
	} else {
		ldb, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			logger.Error("failed to open database", slog.String("path", cfg.DataDir), slog.String("error", err.Error()))
			os.Exit(1)
		}
		db = ldb
	}

	node, err := core.NewNode(db, cfg, logger)
	if err != nil {
		db.Close()
		logger.Error("failed to assemble node", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer node.Close()

	token := strings.TrimSpace(os.Getenv("MARKETD_RPC_TOKEN"))
	if token == "" {
		token = cfg.RPCToken
	}
	server := rpc.NewServer(node, token, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.ListenRPC)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("rpc server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}
}

// generateOperatorKey creates a fresh secp256k1 key, saves it with owner-only
// permissions and returns the bech32 address to configure as Operator. An
// existing file is never overwritten.
func generateOperatorKey(path string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("key file %s already exists", path)
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, key.Bytes(), 0o600); err != nil {
		return "", err
	}
	return key.PubKey().Address().String(), nil
}

// keyAddress derives the bech32 address of the key stored at path.
func keyAddress(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	key, err := crypto.PrivateKeyFromBytes(raw)
	if err != nil {
		return "", fmt.Errorf("invalid key file %s: %w", path, err)
	}
	return key.PubKey().Address().String(), nil
}
