// Package api 暴露任务助手的 HTTP 接口：对话式任务工作流（NDJSON 流）、
// 任务与数据源的 REST 接口，以及健康检查与指标。
package api
