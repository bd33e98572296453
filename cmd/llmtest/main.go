package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"

	"github.com/wolfman30/moto-assistant/cmd/mainconfig"
	"github.com/wolfman30/moto-assistant/internal/app/bootstrap"
	"github.com/wolfman30/moto-assistant/internal/catalog"
	appconfig "github.com/wolfman30/moto-assistant/internal/config"
	"github.com/wolfman30/moto-assistant/internal/conversation"
	"github.com/wolfman30/moto-assistant/internal/correspondents"
	"github.com/wolfman30/moto-assistant/pkg/logging"
)

// llmtest sends one sample turn through the configured gateway and prints the
// parsed reply. Pass a message as arguments to override the default.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	cfg := appconfig.Load()
	logger := logging.New("warn")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var awsCfg *aws.Config
	if loaded, err := mainconfig.LoadAWSConfig(ctx, cfg); err == nil {
		awsCfg = &loaded
	}
	client, err := bootstrap.BuildLLMClient(ctx, cfg, awsCfg, nil, logger)
	if err != nil {
		log.Fatalf("build llm client: %v", err)
	}

	text := "Hola, busco una moto eléctrica para ir al trabajo, mi presupuesto es de 5000"
	if len(os.Args) > 1 {
		text = strings.Join(os.Args[1:], " ")
	}

	items := []catalog.Item{
		{ID: 1, Name: "Volt", Model: "X1", PriceCents: 4500000, Category: "urbana", Range: "120 km", MaxSpeedKmh: 90, Active: true},
		{ID: 2, Name: "Trail", Model: "E2", PriceCents: 8900000, Category: "off-road", Range: "80 km", MaxSpeedKmh: 110, Active: true},
	}
	ec := bootstrap.EngineConfig(cfg)
	req := conversation.LLMRequest{
		Model:       ec.Model,
		System:      []string{conversation.BuildSystemPrompt(items, &correspondents.Correspondent{})},
		Messages:    []conversation.ChatMessage{{Role: conversation.ChatRoleUser, Content: text}},
		MaxTokens:   ec.MaxTokens,
		Temperature: ec.Temperature,
	}

	start := time.Now()
	resp, err := client.Complete(ctx, req)
	if err != nil {
		log.Fatalf("completion failed: %v", err)
	}
	fmt.Printf("latency: %v  tokens in=%d out=%d\n", time.Since(start).Round(time.Millisecond), resp.Usage.InputTokens, resp.Usage.OutputTokens)
	fmt.Printf("raw:\n%s\n\n", resp.Text)

	reply, err := conversation.ParseReply(resp.Text)
	if err != nil {
		log.Fatalf("parse reply: %v", err)
	}
	fmt.Printf("message: %s\n", reply.Message)
	fmt.Printf("action:  %s (structured=%t)\n", reply.ActionTag, reply.Structured)
	fmt.Printf("decoded: %#v\n", reply.Action)
}
