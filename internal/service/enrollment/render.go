package enrollment

import (
	"fmt"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/enrollment-engine/internal/domain"
)

// Renderer expands template placeholders with Liquid. Each template part
// keeps one parsed entry, replaced when a newer revision is rendered.
type Renderer struct {
	engine *liquid.Engine
	mu     sync.RWMutex
	cache  map[string]parsedTemplate // "templateID:part"
}

type parsedTemplate struct {
	revision int64
	tpl      *liquid.Template
}

// Rendered is a personalised email ready to dispatch.
type Rendered struct {
	Subject string
	HTML    string
}

// NewRenderer creates a renderer with the default filter set.
func NewRenderer() *Renderer {
	engine := liquid.NewEngine()
	engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})
	return &Renderer{engine: engine, cache: map[string]parsedTemplate{}}
}

// Bindings builds the placeholder values for one send. Later sources win:
// contact custom fields, then campaign fields, then step fields, then the
// built-in contact fields.
func Bindings(c *domain.Contact, campaign *domain.Campaign, step domain.Step) map[string]interface{} {
	b := map[string]interface{}{}
	for k, v := range c.CustomFields {
		b[k] = v
	}
	for k, v := range campaign.Fields {
		b[k] = v
	}
	for k, v := range step.Fields {
		b[k] = v
	}
	b["firstName"] = c.FirstName
	b["lastName"] = c.LastName
	b["fullName"] = c.FullName()
	b["email"] = c.Email
	b["company"] = c.Company
	b["phone"] = c.Phone
	b["first_name"] = c.FirstName
	b["last_name"] = c.LastName
	b["campaignName"] = campaign.Name
	return b
}

// Render personalises the template for the contact. A step subject
// overrides the template subject.
func (r *Renderer) Render(tmpl *domain.EmailTemplate, c *domain.Contact, campaign *domain.Campaign, step domain.Step) (Rendered, error) {
	bindings := Bindings(c, campaign, step)
	revision := tmpl.UpdatedAt.UnixNano()

	subject := tmpl.Subject
	subjectKey := tmpl.ID + ":subject"
	if step.Subject != "" {
		subject = step.Subject
		subjectKey = ""
	}
	out := Rendered{}
	var err error
	if out.Subject, err = r.render(subjectKey, revision, subject, bindings); err != nil {
		return Rendered{}, fmt.Errorf("render subject: %w", err)
	}
	if out.HTML, err = r.render(tmpl.ID+":body", revision, tmpl.HTMLBody, bindings); err != nil {
		return Rendered{}, fmt.Errorf("render body: %w", err)
	}
	return out, nil
}

func (r *Renderer) render(cacheKey string, revision int64, source string, bindings map[string]interface{}) (string, error) {
	if cacheKey != "" {
		r.mu.RLock()
		cached, ok := r.cache[cacheKey]
		r.mu.RUnlock()
		if ok && cached.revision == revision {
			return renderTemplate(cached.tpl, bindings)
		}
	}
	tpl, perr := r.engine.ParseString(source)
	if perr != nil {
		return "", perr
	}
	if cacheKey != "" {
		r.mu.Lock()
		// An older revision never replaces a newer one.
		if cur, ok := r.cache[cacheKey]; !ok || cur.revision <= revision {
			r.cache[cacheKey] = parsedTemplate{revision: revision, tpl: tpl}
		}
		r.mu.Unlock()
	}
	return renderTemplate(tpl, bindings)
}

func renderTemplate(tpl *liquid.Template, bindings map[string]interface{}) (string, error) {
	out, err := tpl.RenderString(bindings)
	if err != nil {
		return "", err
	}
	return out, nil
}
