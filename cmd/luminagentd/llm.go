package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Lumin-Agent/internal/config"
	"Lumin-Agent/internal/llm"
	"Lumin-Agent/internal/llm/anthropic"
	"Lumin-Agent/internal/llm/gemini"
	"Lumin-Agent/internal/llm/openai"
	"Lumin-Agent/internal/llm/pythonbridge"
)

// newLLMClient 按 provider 创建模型客户端，并统一包上超时、限流与重试。
func newLLMClient(ctx context.Context, cfg *config.Config) (llm.Client, error) {
	var (
		client llm.Client
		err    error
	)
	switch cfg.LLM.Provider {
	case "openai":
		apiKey := cfg.LLM.OpenAI.ResolveAPIKey()
		if apiKey == "" {
			return nil, errors.New("openai provider 需要配置 api_key 或 api_key_env")
		}
		client, err = openai.NewClient(openai.Config{
			APIKey:      apiKey,
			BaseURL:     cfg.LLM.OpenAI.BaseURL,
			Model:       cfg.LLM.DefaultModel,
			Temperature: cfg.LLM.OpenAI.Temperature,
			Timeout:     cfg.LLM.Timeout(),
		})
	case "anthropic":
		client, err = anthropic.NewClient(anthropic.Config{
			APIKey:  cfg.LLM.Anthropic.ResolveAPIKey(),
			BaseURL: cfg.LLM.Anthropic.BaseURL,
			Model:   cfg.LLM.DefaultModel,
		})
	case "gemini":
		client, err = gemini.NewClient(ctx, gemini.Config{
			APIKey:  cfg.LLM.Gemini.ResolveAPIKey(),
			BaseURL: cfg.LLM.Gemini.BaseURL,
			Model:   cfg.LLM.DefaultModel,
		})
	case "python_bridge":
		script := pythonbridge.ResolveScriptPath(cfg.LLM.Python.WorkingDir, cfg.LLM.Python.ScriptPath)
		client, err = pythonbridge.NewClient(cfg.LLM.Python.PythonExecutable, script, cfg.LLM.Python.WorkingDir)
	default:
		return nil, fmt.Errorf("未知的大模型 provider: %s", cfg.LLM.Provider)
	}
	if err != nil {
		return nil, err
	}

	return llm.NewRetryClient(client,
		llm.WithRetryPolicy(llm.RetryPolicy{
			MaxAttempts:    cfg.LLM.Retry.MaxAttempts,
			InitialBackoff: time.Duration(cfg.LLM.Retry.InitialBackoff) * time.Millisecond,
			MaxBackoff:     time.Duration(cfg.LLM.Retry.MaxBackoff) * time.Millisecond,
		}),
		llm.WithAttemptTimeout(cfg.LLM.Timeout()),
		llm.WithRateLimit(cfg.LLM.RateLimit.RequestsPerSecond, cfg.LLM.RateLimit.Burst),
	), nil
}
