package tools

import (
	"context"
	"time"

	"github.com/cloudwego/eino/schema"
)

// CreateTodoTool files a todo for human follow-up.
type CreateTodoTool struct {
	definition
	tasks TaskClient
}

func newCreateTodo(tasks TaskClient, clock func() time.Time) *CreateTodoTool {
	return &CreateTodoTool{
		tasks: tasks,
		definition: definition{
			name:   "create_todo",
			desc:   "创建一个待办事项，用于记录需要人工介入的用户诉求。当前时间为{now}",
			action: "创建待办事项",
			clock:  clock,
			params: map[string]*schema.ParameterInfo{
				"subject":     {Type: schema.String, Desc: "待办事项标题", Required: true},
				"dueTime":     {Type: schema.Integer, Desc: "截止时间，Unix 时间戳，单位毫秒，例如 1617675000000"},
				"description": {Type: schema.String, Desc: "待办事项描述，应包含用户诉求与情绪值"},
				"priority":    {Type: schema.Integer, Desc: "优先级 10：较低 20：普通 30：紧急 40：非常紧急"},
			},
		},
	}
}

// TaskPriority maps 10/20/30/40 style priorities onto the task platform's 1..4.
// Zero means unset.
func TaskPriority(p int64) int {
	switch {
	case p <= 0:
		return 0
	case p <= 10:
		return 1
	case p <= 20:
		return 2
	case p <= 30:
		return 3
	default:
		return 4
	}
}

func (t *CreateTodoTool) Run(ctx context.Context, args map[string]any) (string, error) {
	subject := stringArg(args, "subject")
	if subject == "" {
		return "", invalidf("subject 不能为空")
	}

	in := TaskInput{
		Summary:     subject,
		Description: stringArg(args, "description"),
	}
	if p, ok := intArg(args, "priority"); ok {
		if p < 0 {
			return "", invalidf("priority 不能为负数")
		}
		in.Priority = TaskPriority(p)
	}
	if due, ok := intArg(args, "dueTime"); ok && due > 0 {
		// Anything below 1e12 is a seconds timestamp (before 2001 in milliseconds).
		if due < 1e12 {
			return "", invalidf("dueTime 必须是毫秒时间戳，收到 %d", due)
		}
		in.Due = time.UnixMilli(due)
	}

	if _, err := t.tasks.CreateTask(ctx, in); err != nil {
		return "", err
	}
	return "成功创建待办事项: " + subject, nil
}
