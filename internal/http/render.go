package http

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/blacknight/storefront/internal/checkout"
	"github.com/blacknight/storefront/internal/domain"
	"github.com/cockroachdb/errors"
)

//go:embed templates/*.html
var templateFS embed.FS

// Money formats minor units the way the storefront shows prices: $1.234.567.
func Money(v int64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := strconv.FormatInt(v, 10)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-$" + b.String()
	}
	return "$" + b.String()
}

var funcs = template.FuncMap{
	"money": Money,
	"clock": checkout.Clock,
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Local().Format("Mon 02 Jan 2006, 15:04")
	},
	"fee": domain.ServiceFee,
	"add": func(a, b int) int { return a + b },
}

type Renderer struct {
	pages map[string]*template.Template
}

func NewRenderer() (*Renderer, error) {
	names, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	rd := &Renderer{pages: map[string]*template.Template{}}
	for _, name := range names {
		base := path.Base(name)
		if base == "layout.html" {
			continue
		}
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", name)
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s", base)
		}
		rd.pages[strings.TrimSuffix(base, ".html")] = t
	}
	return rd, nil
}

// View is what every page template receives.
type View struct {
	Title string
	User  *domain.User
	Flash []string
	Data  interface{}
}

func (rd *Renderer) HTML(w http.ResponseWriter, status int, page string, v View) error {
	t, ok := rd.pages[page]
	if !ok {
		return errors.Newf("unknown page %q", page)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", v); err != nil {
		return errors.Wrapf(err, "render %s", page)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
