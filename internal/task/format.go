package task

import (
	"fmt"
	"strings"
)

// Message 把结果转成工作流最终回复的文字。
func (o Outcome) Message() string {
	switch o.Kind {
	case OutcomeCreated:
		msg := fmt.Sprintf("✅ Task created: '**%s**'. I've added it to your workspace.", o.Task.Title)
		if o.DataSource != nil {
			msg += fmt.Sprintf(" It's linked to the **%s** dataset.", o.DataSource.Name)
		}
		return msg
	case OutcomeUpdated:
		return fmt.Sprintf("✅ Updated task: '**%s**'. Changes applied.", o.Task.Title)
	case OutcomeNoChange:
		return fmt.Sprintf("I found the task '**%s**', but I wasn't sure what specific changes to make. "+
			"Could you clarify if you want to change the status, priority, or description?", o.Task.Title)
	case OutcomeDeleted:
		return fmt.Sprintf("🗑️ Deleted task: '**%s**'.", o.Task.Title)
	case OutcomeListed:
		return ListSummary(o.Tasks)
	case OutcomeNotFound:
		if o.Op == OpDelete {
			return fmt.Sprintf("🔍 I couldn't find a task matching '**%s**' to delete.", o.Reference)
		}
		return fmt.Sprintf("🔍 I couldn't find a task matching '**%s**'. Please check the title and try again.", o.Reference)
	default:
		return ""
	}
}

// ListSummary 生成 "• **标题** (状态)" 形式的列表。
func ListSummary(tasks []*Task) string {
	if len(tasks) == 0 {
		return "You don't have any tasks in your workspace yet. Would you like to create one?"
	}
	lines := make([]string, 0, len(tasks))
	for _, t := range tasks {
		lines = append(lines, fmt.Sprintf("• **%s** (%s)", t.Title, t.Status))
	}
	return "📋 Your latest tasks:\n" + strings.Join(lines, "\n")
}
