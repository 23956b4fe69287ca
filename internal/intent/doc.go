// Package intent 负责判断一句提问是否是任务管理操作，并抽取结构化字段。
//
// 分类分两步：先用固定关键词做廉价过滤，命中后才调用大模型输出 JSON。
// 模型输出无法解析时按非任务处理并记录原始内容。
package intent
