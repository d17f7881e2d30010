package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ahmetk3436/ppmchat/internal/planner"
	"github.com/ahmetk3436/ppmchat/internal/ppm"
)

// lookupFields are the attributes fetched when searching a record by name.
const lookupFields = ppm.IdentityField + ",code,name"

var placeholder = regexp.MustCompile(`\{([A-Za-z]*?)(?:Id|ID|_id)?\}`)

// resolvePlaceholders replaces {id} with the plan's target record and
// {parentId} style segments with the id of the named parent record.
func (e *Executor) resolvePlaceholders(ctx context.Context, plan *planner.Plan) (string, error) {
	path := plan.Endpoint
	if path == "" {
		path = "/" + plan.ObjectType
	}

	var firstErr error
	out := placeholder.ReplaceAllStringFunc(path, func(m string) string {
		if firstErr != nil {
			return m
		}
		name := placeholder.FindStringSubmatch(m)[1]

		objectType, target := plan.ObjectType, plan.TargetName
		if name != "" && !strings.EqualFold(name, "id") {
			objectType, target = e.parentType(name), plan.ParentName
		}

		rec, err := e.findRecord(ctx, objectType, target)
		if err != nil {
			firstErr = err
			return m
		}
		return recordID(rec)
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// parentType maps a placeholder stem like "project" onto an object type.
func (e *Executor) parentType(stem string) string {
	if name, ok := e.schemas.ResolveObjectName(stem); ok {
		return name
	}
	return strings.ToLower(stem) + "s"
}

// findRecord looks a record up by exact code, then by a case-insensitive
// name containment scan. An exact name beats a partial one, and among
// partial matches the shortest name wins.
func (e *Executor) findRecord(ctx context.Context, objectType, name string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &RecordNotFoundError{ObjectType: objectType}
	}

	byCode := ppm.Endpoint("/"+objectType, map[string]string{
		"filter": ppm.EqualsFilter("code", name),
		"fields": lookupFields,
		"limit":  "1",
	})
	resp, err := e.api.Get(ctx, byCode)
	if err != nil {
		var rce *ppm.RemoteCallError
		if errors.As(err, &rce) && rce.Kind == ppm.KindAuth {
			return nil, err
		}
		slog.Debug("Code lookup failed, falling back to name scan", "object_type", objectType, "error", err)
	} else if len(resp.Results) > 0 {
		return resp.Results[0], nil
	}

	resp, err = e.api.Get(ctx, ppm.Endpoint("/"+objectType, map[string]string{
		"fields": lookupFields,
		"limit":  strconv.Itoa(ppm.MaxResults),
	}))
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(name)
	var matches []map[string]any
	for _, r := range resp.Results {
		n := strings.ToLower(ppm.FormatValue(r["name"]))
		if n == needle {
			return r, nil
		}
		if n != "" && strings.Contains(n, needle) {
			matches = append(matches, r)
		}
	}
	if len(matches) == 0 {
		return nil, &RecordNotFoundError{ObjectType: objectType, Name: name}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := ppm.FormatValue(matches[i]["name"]), ppm.FormatValue(matches[j]["name"])
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return a < b
	})
	return matches[0], nil
}

// FindRecord is findRecord for callers outside the executor.
func (e *Executor) FindRecord(ctx context.Context, objectType, name string) (map[string]any, error) {
	return e.findRecord(ctx, objectType, name)
}

func recordID(r map[string]any) string {
	return ppm.FormatValue(r[ppm.IdentityField])
}

// recordTitle is the most readable label of a record.
func recordTitle(r map[string]any) string {
	name := ppm.FormatValue(r["name"])
	code := ppm.FormatValue(r["code"])
	switch {
	case name != "" && code != "":
		return fmt.Sprintf("%s (%s)", name, code)
	case name != "":
		return name
	case code != "":
		return code
	}
	if id := recordID(r); id != "" {
		return "#" + id
	}
	return "(unnamed)"
}

// renderRecords lists up to maxListed records under header.
func renderRecords(header string, records []map[string]any, total int) string {
	if len(records) == 0 {
		return strings.Replace(header, "Found 0", "Found no", 1) + "."
	}

	var sb strings.Builder
	sb.WriteString(header + ":\n")
	shown := 0
	for _, r := range records {
		if shown == maxListed {
			break
		}
		line := "• " + recordTitle(r)
		if status := ppm.FormatValue(r["status"]); status != "" {
			line += " · " + status
		}
		sb.WriteString(line + "\n")
		shown++
	}
	if more := total - shown; more > 0 {
		sb.WriteString(fmt.Sprintf("+%d more\n", more))
	}
	return strings.TrimRight(sb.String(), "\n")
}
