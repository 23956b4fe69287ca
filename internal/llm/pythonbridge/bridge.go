package pythonbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"Lumin-Agent/internal/llm"
)

const providerName = "python_bridge"

// Client 通过调用 Python 脚本实现大模型推理。
// 脚本从 stdin 读取 JSON 请求，并向 stdout 输出 {"text": "..."}。
type Client struct {
	pythonExec string
	scriptPath string
	workingDir string
}

// NewClient 创建 Python Bridge 客户端。
func NewClient(pythonExec, scriptPath, workingDir string) (*Client, error) {
	if scriptPath == "" {
		return nil, fmt.Errorf("未指定 Python 脚本路径")
	}
	if pythonExec == "" {
		pythonExec = "python3"
	}
	return &Client{
		pythonExec: pythonExec,
		scriptPath: scriptPath,
		workingDir: workingDir,
	}, nil
}

// Complete 调用外部脚本，并解析输出。
func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	payload := map[string]any{
		"model":       req.Model,
		"system":      req.System,
		"prompt":      req.Prompt,
		"temperature": req.Temperature,
		"json":        req.JSON,
		"timestamp":   time.Now().Unix(),
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("序列化请求失败: %w", err)
	}

	command := exec.CommandContext(ctx, c.pythonExec, c.scriptPath)
	if c.workingDir != "" {
		command.Dir = c.workingDir
	}
	command.Stdin = bytes.NewReader(encoded)

	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", llm.UpstreamError(providerName, ctxErr, true)
		}
		return "", llm.UpstreamError(providerName,
			fmt.Errorf("执行 Python 脚本失败: %v, stderr=%s", err, strings.TrimSpace(stderr.String())), false)
	}

	var resp struct {
		Text  string `json:"text"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return "", llm.UpstreamError(providerName, fmt.Errorf("解析 Python 输出失败: %w", err), false)
	}
	if resp.Error != "" {
		return "", llm.UpstreamError(providerName, errors.New(resp.Error), true)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return "", llm.UpstreamError(providerName, errors.New("Python 脚本没有返回文本"), false)
	}
	return strings.TrimSpace(resp.Text), nil
}

// ResolveScriptPath 根据工作目录推导脚本绝对路径。
func ResolveScriptPath(baseDir, script string) string {
	if script == "" {
		return ""
	}
	if filepath.IsAbs(script) {
		return script
	}
	if baseDir == "" {
		return script
	}
	return filepath.Join(baseDir, script)
}

var _ llm.Client = (*Client)(nil)
