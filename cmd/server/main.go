package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"dsmessenger/config"
	"dsmessenger/internal/httpapi"
	"dsmessenger/internal/protocol"
	"dsmessenger/internal/session"
	"dsmessenger/internal/store"
)

func main() {
	log.Println("🚀 Starting DS Messenger Server")

	// Load configuration
	cfg := config.Load()

	// Open the mailbox store
	st, err := store.Open(cfg.StoreDir)
	if err != nil {
		log.Fatalf("Failed to open mailbox store: %v", err)
	}

	// Session table for TCP protocol connections
	sessions := session.NewTable()

	// Initialize TCP protocol server
	tcpServer := protocol.NewServer(cfg, st, sessions)

	// Initialize HTTP gateway
	httpServer := httpapi.NewServer(cfg, st)

	// Start servers in goroutines
	go func() {
		log.Printf("Starting TCP server on :%s", cfg.TCPPort)
		if err := tcpServer.Start(); err != nil {
			log.Fatalf("TCP server failed: %v", err)
		}
	}()

	go func() {
		log.Printf("Starting HTTP gateway on :%s", cfg.HTTPPort)
		if err := httpServer.Start(); err != nil {
			log.Fatalf("HTTP gateway failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	log.Println("✅ DS Messenger Server is running")
	log.Println("💬 TCP Protocol: " + cfg.Host + ":" + cfg.TCPPort)
	log.Println("🌐 HTTP Gateway: http://" + cfg.Host + ":" + cfg.HTTPPort)
	log.Println("💾 Store: " + st.Path())
	log.Println("Press Ctrl+C to stop")

	// Block until signal received
	<-c
	log.Println("🛑 Shutting down DS Messenger Server...")
}
