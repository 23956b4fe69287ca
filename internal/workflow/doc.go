// Package workflow 串联意图识别、任务定位、任务变更与会话记录，
// 并以有序事件流的形式把进度与最终回答推送给调用方。
//
// 每次 Run 只处理一句提问，事件顺序固定：先是 analyzing_intent，
// 最后是携带 answer 的终止事件，或在失败时携带 error 的终止事件。
package workflow
