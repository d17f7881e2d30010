package schema

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmetk3436/ppmchat/internal/ppm"
	"github.com/ahmetk3436/ppmchat/internal/ppm/ppmtest"
)

func projectDescribe() map[string]any {
	return map[string]any{
		"resourceName": "projects",
		"label":        "Project",
		"attributes": []any{
			map[string]any{"apiAttributeName": "_internalId", "displayName": "Internal ID", "dataType": "integer", "isReadOnly": true},
			map[string]any{"apiAttributeName": "name", "displayName": "Name", "dataType": "string", "isRequired": true},
			map[string]any{"apiAttributeName": "code", "displayName": "ID", "dataType": "string"},
			map[string]any{"attributeName": "status", "label": "Status", "type": "lookup", "lookupType": "INV_STATUS"},
			map[string]any{"apiName": "manager", "attributeLabel": "Manager", "dataType": "lookup"},
			map[string]any{"apiAttributeName": "description", "displayName": "Description", "dataType": "clob"},
			map[string]any{"apiAttributeName": "budget", "displayName": "Budget", "dataType": "number", "precision": 10.0, "scale": 2.0},
			map[string]any{"apiAttributeName": "createdDate", "displayName": "Created", "dataType": "date"},
			map[string]any{"apiAttributeName": "lastUpdatedBy", "displayName": "Updated By", "dataType": "string", "isReadOnly": true},
			map[string]any{"apiAttributeName": "", "displayName": "Broken", "dataType": "string"},
			map[string]any{"apiAttributeName": "name", "displayName": "Duplicate", "dataType": "string"},
		},
	}
}

func TestGetSchema_Normalizes(t *testing.T) {
	api := ppmtest.New()
	api.Object("/describe/projects", projectDescribe())
	c := NewCache(api, time.Hour)

	entry, err := c.GetSchema(context.Background(), "projects")
	require.NoError(t, err)

	names := make([]string, 0, len(entry.Attributes))
	for _, a := range entry.Attributes {
		names = append(names, a.APIName)
	}
	assert.Equal(t, []string{"_internalId", "name", "code", "status", "manager", "budget", "createdDate", "lastUpdatedBy"}, names)

	status, ok := entry.Attribute("STATUS")
	require.True(t, ok)
	assert.Equal(t, "Status", status.DisplayName)
	assert.True(t, status.IsLookup)
	assert.Equal(t, "INV_STATUS", status.LookupType)

	budget, ok := entry.Attribute("Budget")
	require.True(t, ok)
	require.NotNil(t, budget.Scale)
	assert.Equal(t, 2, *budget.Scale)
}

func TestGetSchema_CachesAndServesStale(t *testing.T) {
	api := ppmtest.New()
	api.Object("/describe/projects", projectDescribe())
	c := NewCache(api, time.Hour)
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, err := c.GetSchema(context.Background(), "projects")
	require.NoError(t, err)
	_, err = c.GetSchema(context.Background(), "projects")
	require.NoError(t, err)
	assert.Equal(t, 1, api.CallCount("GET"))

	now = now.Add(2 * time.Hour)
	api.Fail("GET", "/describe/projects", errors.New("connection refused"))
	entry, err := c.GetSchema(context.Background(), "projects")
	require.NoError(t, err)
	assert.Equal(t, "projects", entry.ResourceName)
	assert.Equal(t, 2, api.CallCount("GET"))
}

func TestGetSchema_FetchError(t *testing.T) {
	api := ppmtest.New()
	api.Fail("GET", "/describe/ideas", errors.New("boom"))
	c := NewCache(api, time.Hour)

	_, err := c.GetSchema(context.Background(), "ideas")
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "ideas", fe.Resource)
}

func TestGetSchema_ConcurrentMissesShareFetch(t *testing.T) {
	api := ppmtest.New()
	release := make(chan struct{})
	api.Handle("GET", "/describe/projects", func(string, any) (*ppm.Response, error) {
		<-release
		return &ppm.Response{StatusCode: 200, Raw: projectDescribe()}, nil
	})
	c := NewCache(api, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetSchema(context.Background(), "projects")
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, api.CallCount("GET"), 5)
	assert.GreaterOrEqual(t, api.CallCount("GET"), 1)
}

func TestDiscoverObjectTypes(t *testing.T) {
	api := ppmtest.New()
	api.Results("/describe",
		map[string]any{"resourceName": "projects", "label": "Project"},
		map[string]any{"resourceName": "custRisk", "label": "Risk Register", "isCustom": true},
	)
	api.Results("/describe?isCustom=true",
		map[string]any{"resourceName": "custVendor", "label": "Vendor"},
	)
	c := NewCache(api, time.Hour)

	names := c.DiscoverObjectTypes(context.Background(), false)
	assert.Equal(t, "projects", names[0])
	assert.Contains(t, names, "custRisk")
	assert.Contains(t, names, "custVendor")
	for _, std := range StandardObjects {
		assert.Contains(t, names, std)
	}

	custom := c.CustomObjects()
	require.Len(t, custom, 2)
	assert.Equal(t, "Risk Register", custom[0].Label)
	assert.Equal(t, "Vendor", custom[1].Label)
	assert.True(t, c.IsCustom("custVendor"))

	calls := api.CallCount("GET")
	c.DiscoverObjectTypes(context.Background(), false)
	assert.Equal(t, calls, api.CallCount("GET"))
	c.DiscoverObjectTypes(context.Background(), true)
	assert.Greater(t, api.CallCount("GET"), calls)
}

func TestDiscoverObjectTypes_FallsBackToStandard(t *testing.T) {
	api := ppmtest.New()
	api.Fail("GET", "/describe", errors.New("unreachable"))
	c := NewCache(api, time.Hour)

	assert.Equal(t, StandardObjects, c.DiscoverObjectTypes(context.Background(), false))
}

func TestGroupableFields(t *testing.T) {
	api := ppmtest.New()
	api.Object("/describe/projects", projectDescribe())
	c := NewCache(api, time.Hour)
	entry, err := c.GetSchema(context.Background(), "projects")
	require.NoError(t, err)

	var names []string
	for _, a := range GroupableFields(entry) {
		names = append(names, a.APIName)
	}
	// status and manager come from the priority list, then A→Z by display name.
	assert.Equal(t, []string{"status", "manager", "budget", "code", "name"}, names)
}

func TestResolveObjectName(t *testing.T) {
	api := ppmtest.New()
	api.Results("/describe",
		map[string]any{"resourceName": "projects", "label": "Project", "pluralLabel": "Projects"},
		map[string]any{"resourceName": "custProjectRisk", "label": "Project Risk"},
		map[string]any{"resourceName": "tasks", "label": "Task"},
	)
	c := NewCache(api, time.Hour)
	c.DiscoverObjectTypes(context.Background(), false)

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"projects", "projects", true},
		{"project risk", "custProjectRisk", true},
		{"show me every project risk entry", "custProjectRisk", true},
		{"all the projects please", "projects", true},
		{"task", "tasks", true},
		{"xyzzy", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := c.ResolveObjectName(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
