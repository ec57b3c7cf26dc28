package campaign

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/osteele/liquid"

	"github.com/Santonastaso/crm-demo-sub000/internal/pkg/logger"
)

var plainVarRegex = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Renderer renders step templates against recipient attributes. Missing
// variables render as empty text. A template Liquid cannot handle falls back
// to plain {{field}} substitution, so a broken template never blocks a step.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewRenderer creates a renderer with the CRM's custom filters.
func NewRenderer() *Renderer {
	engine := liquid.NewEngine()

	// {{ first_name | default: "there" }} treats blank strings as missing
	engine.RegisterFilter("default", func(value interface{}, fallback string) interface{} {
		if value == nil {
			return fallback
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return fallback
		}
		return value
	})

	return &Renderer{engine: engine}
}

// Render never fails; see Renderer.
func (r *Renderer) Render(tmpl string, attrs map[string]any) string {
	if tmpl == "" {
		return ""
	}

	tpl, err := r.parse(tmpl)
	if err == nil {
		out, rerr := tpl.RenderString(attrs)
		if rerr == nil {
			return out
		}
		logger.Warn("template render failed, using plain substitution", "error", rerr.Error())
	} else {
		logger.Warn("template parse failed, using plain substitution", "error", err.Error())
	}
	return substitute(tmpl, attrs)
}

func (r *Renderer) parse(tmpl string) (*liquid.Template, error) {
	if cached, ok := r.cache.Load(tmpl); ok {
		return cached.(*liquid.Template), nil
	}
	tpl, err := r.engine.ParseString(tmpl)
	if err != nil {
		return nil, err
	}
	r.cache.Store(tmpl, tpl)
	return tpl, nil
}

func substitute(tmpl string, attrs map[string]any) string {
	return plainVarRegex.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := plainVarRegex.FindStringSubmatch(m)[1]
		v, ok := attrs[name]
		if !ok || v == nil {
			return ""
		}
		return fmt.Sprintf("%v", v)
	})
}
