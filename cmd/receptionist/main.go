package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/birddigital/voice-receptionist/pkg/messaging"
	"github.com/birddigital/voice-receptionist/pkg/realtime"
	"github.com/birddigital/voice-receptionist/pkg/relay"
	"github.com/birddigital/voice-receptionist/pkg/scheduling"
	"github.com/birddigital/voice-receptionist/pkg/store"
	"github.com/birddigital/voice-receptionist/pkg/telephony"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("[Main] DATABASE_URL not set")
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		log.Fatalf("[Main] Failed to create database pool: %v", err)
	}
	defer pool.Close()

	if err := store.Migrate(ctx, pool); err != nil {
		log.Fatalf("[Main] Failed to apply migrations: %v", err)
	}

	st := store.NewPostgres(pool)
	engine := scheduling.NewEngine(st, st, st, st)

	dialer, err := realtime.NewDialer(realtime.Config{
		APIKey:   os.Getenv("OPENAI_API_KEY"),
		Model:    envOr("OPENAI_REALTIME_MODEL", "gpt-4o-realtime-preview"),
		Endpoint: os.Getenv("OPENAI_REALTIME_ENDPOINT"),
	})
	if err != nil {
		log.Fatalf("[Main] Model endpoint configuration rejected: %v", err)
	}
	dial := func(ctx context.Context, cfg realtime.SessionConfig) (relay.ModelSession, error) {
		return dialer.Dial(ctx, cfg)
	}

	// Call transfer works only with provider API credentials; without them
	// transfer_to_human still answers the model but no leg redirect happens
	var transfer relay.CallTransferrer
	if sid := os.Getenv("TWILIO_ACCOUNT_SID"); sid != "" {
		client := telephony.NewTransferClient(sid, os.Getenv("TWILIO_AUTH_TOKEN"))
		if err := client.Validate(); err != nil {
			log.Fatalf("[Main] Transfer client configuration rejected: %v", err)
		}
		transfer = client
	} else {
		log.Println("[Main] No telephony API credentials; call transfer disabled")
	}

	orchestrator := relay.NewOrchestrator(st, engine, dial, transfer, envOr("MODEL_VOICE", "alloy"))

	if from := os.Getenv("TWILIO_SMS_FROM"); from != "" {
		sms := messaging.NewClient(os.Getenv("TWILIO_ACCOUNT_SID"), os.Getenv("TWILIO_AUTH_TOKEN"), from)
		if err := sms.Validate(); err != nil {
			log.Fatalf("[Main] SMS client configuration rejected: %v", err)
		}
		orchestrator.SetNotifier(sms)
	}

	webhooks := telephony.NewWebhookHandlers(envOr("PUBLIC_HOST", "localhost:8080"))

	mux := http.NewServeMux()
	mux.Handle("/stream/twilio", telephony.NewStreamServer(telephony.NewTwilioAdapter, orchestrator))
	mux.Handle("/stream/exotel", telephony.NewStreamServer(telephony.NewExotelAdapter, orchestrator))
	mux.HandleFunc("/webhook/twilio/incoming", webhooks.HandleTwilioIncoming)
	mux.HandleFunc("/health", webhooks.HandleHealth)

	server := &http.Server{
		Addr:              ":" + envOr("PORT", "8080"),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Println("[Main] Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("[Main] Receptionist listening on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("[Main] Server error: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
