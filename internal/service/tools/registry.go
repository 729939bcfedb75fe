package tools

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/xiaolang/backend/internal/logging"
)

var (
	// ErrUnknownTool is returned for a name the registry does not hold.
	ErrUnknownTool = errors.New("tools: unknown tool")
	// ErrInvalidArguments marks arguments rejected before execution.
	ErrInvalidArguments = errors.New("tools: invalid arguments")
	// ErrTargetNotFound is returned when a calendar target cannot be resolved.
	ErrTargetNotFound = errors.New("tools: target not found")
)

// Tool is one callable capability.
type Tool interface {
	Info() *schema.ToolInfo
	// Params is the strict argument schema enforced before Run.
	Params() map[string]*schema.ParameterInfo
	// Action names the operation in user-facing failure text, e.g. "创建日程".
	Action() string
	Run(ctx context.Context, args map[string]any) (string, error)
}

// Registry holds the fixed tool set built at startup.
type Registry struct {
	tools  map[string]Tool
	names  []string
	logger *zap.Logger
}

// NewRegistry indexes tools by name. Duplicate names are rejected.
func NewRegistry(logger *zap.Logger, tools ...Tool) (*Registry, error) {
	r := &Registry{
		tools:  make(map[string]Tool, len(tools)),
		logger: logging.OrNop(logger).Named("tools"),
	}
	for _, t := range tools {
		name := t.Info().Name
		if name == "" {
			return nil, fmt.Errorf("tool without name: %T", t)
		}
		if _, dup := r.tools[name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", name)
		}
		r.tools[name] = t
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Names lists registered tool names in sorted order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Infos returns the tool schemas for binding to a model.
func (r *Registry) Infos() []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(r.names))
	for _, name := range r.names {
		infos = append(infos, r.tools[name].Info())
	}
	return infos
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Invoke validates and runs a tool call, rendering every failure as text for
// the model. It never returns an error and never retries.
func (r *Registry) Invoke(ctx context.Context, name, arguments string) string {
	out, err := r.Execute(ctx, name, arguments)
	if err == nil {
		return out
	}

	switch {
	case errors.Is(err, ErrUnknownTool):
		return fmt.Sprintf("工具调用失败: 不存在名为 %s 的工具", name)
	case errors.Is(err, ErrInvalidArguments):
		return "工具参数错误: " + strings.TrimPrefix(err.Error(), ErrInvalidArguments.Error()+": ")
	default:
		return fmt.Sprintf("%s失败: %v", r.tools[name].Action(), err)
	}
}

// Execute is Invoke without rendering: errors wrap ErrUnknownTool,
// ErrInvalidArguments or the tool's own failure.
func (r *Registry) Execute(ctx context.Context, name, arguments string) (out string, err error) {
	t, ok := r.tools[name]
	if !ok {
		r.logger.Warn("unknown tool requested", zap.String("tool", name))
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	args, err := Validate(t.Params(), arguments)
	if err != nil {
		r.logger.Warn("tool arguments rejected",
			zap.String("tool", name), zap.String("arguments", arguments), zap.Error(err))
		return "", err
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool panicked",
				zap.String("tool", name), zap.Any("panic", rec), zap.ByteString("stack", debug.Stack()))
			out, err = "", fmt.Errorf("internal error: %v", rec)
		}
	}()

	start := time.Now()
	out, err = t.Run(ctx, args)
	if err != nil {
		r.logger.Warn("tool failed",
			zap.String("tool", name), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return "", err
	}
	r.logger.Info("tool executed",
		zap.String("tool", name), zap.Duration("elapsed", time.Since(start)))
	return out, nil
}

// definition carries the static part of a tool. Tools embed it and add Run.
type definition struct {
	name   string
	desc   string
	action string
	params map[string]*schema.ParameterInfo
	clock  func() time.Time
}

// nowPlaceholder in a description is replaced with the current local time.
const nowPlaceholder = "{now}"

func (d definition) Info() *schema.ToolInfo {
	desc := d.desc
	if strings.Contains(desc, nowPlaceholder) {
		desc = strings.ReplaceAll(desc, nowPlaceholder, d.now().Format(time.RFC3339))
	}
	return &schema.ToolInfo{
		Name:        d.name,
		Desc:        desc,
		ParamsOneOf: schema.NewParamsOneOfByParams(d.params),
	}
}

func (d definition) Params() map[string]*schema.ParameterInfo {
	return d.params
}

func (d definition) Action() string {
	return d.action
}

func (d definition) now() time.Time {
	if d.clock != nil {
		return d.clock()
	}
	return time.Now()
}

// invalidf builds an ErrInvalidArguments error from inside a tool.
func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArguments, fmt.Sprintf(format, args...))
}
