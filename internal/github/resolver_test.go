package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NielsdaWheelz/eddev/internal/errors"
)

type fakeAPI struct {
	// pulls maps "owner/repo/number" to head ssh url, head ref, base ref.
	pulls     map[string][3]string
	composer  map[string]string // "owner/repo@ref" -> composer.json
	authSeen  []string
	requested []string
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/{owner}/{repo}/pulls/{number}", func(w http.ResponseWriter, r *http.Request) {
		f.authSeen = append(f.authSeen, r.Header.Get("Authorization"))
		key := r.PathValue("owner") + "/" + r.PathValue("repo") + "/" + r.PathValue("number")
		f.requested = append(f.requested, key)
		pr, ok := f.pulls[key]
		if !ok {
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, `{"number": 1, "head": {"ref": %q, "repo": {"ssh_url": %q}}, "base": {"ref": %q}}`, pr[1], pr[0], pr[2])
	})
	mux.HandleFunc("GET /repos/{owner}/{repo}/contents/composer.json", func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue("owner") + "/" + r.PathValue("repo") + "@" + r.URL.Query().Get("ref")
		body, ok := f.composer[key]
		if !ok {
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, `{"type": "file", "encoding": "base64", "name": "composer.json", "path": "composer.json", "content": %q}`,
			base64.StdEncoding.EncodeToString([]byte(body)))
	})
	return mux
}

func newTestResolver(t *testing.T, api *fakeAPI) *Resolver {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	r, err := NewResolver(context.Background(), "test-token", srv.URL, nil)
	require.NoError(t, err)
	return r
}

func frameworkAPI() *fakeAPI {
	return &fakeAPI{
		pulls: map[string][3]string{
			"silverstripe/silverstripe-framework/123": {"git@github.com:creative-commoners/silverstripe-framework.git", "pulls/5/fix-thing", "5"},
			"silverstripe/silverstripe-framework/456": {"git@github.com:silverstripe-security/silverstripe-framework.git", "cve-fix", "5"},
			"silverstripe/silverstripe-admin/7":       {"git@github.com:someone/silverstripe-admin.git", "feature", "2"},
			"silverstripe/silverstripe-cms/8":         {"", "", "5"},
			"silverstripe/silverstripe-graphql/9":     {"git@github.com:someone/silverstripe-graphql.git", "x", "5"},
		},
		composer: map[string]string{
			"silverstripe/silverstripe-framework@5": `{"name": "silverstripe/framework", "type": "silverstripe-vendormodule"}`,
			"silverstripe/silverstripe-admin@2":     `{"name": "silverstripe/admin"}`,
			"silverstripe/silverstripe-graphql@5":   `{"description": "nameless"}`,
		},
	}
}

func TestResolve_URL(t *testing.T) {
	api := frameworkAPI()
	r := newTestResolver(t, api)

	pr, err := r.Resolve(context.Background(), "https://github.com/silverstripe/silverstripe-framework/pull/123")
	require.NoError(t, err)
	assert.Equal(t, PullRequest{
		Ref:         "https://github.com/silverstripe/silverstripe-framework/pull/123",
		PackageName: "silverstripe/framework",
		Remote:      "git@github.com:creative-commoners/silverstripe-framework.git",
		Branch:      "pulls/5/fix-thing",
		Org:         OrgCommunity,
	}, pr)
	assert.Equal(t, []string{"Bearer test-token"}, api.authSeen)
}

func TestResolve_Shorthand(t *testing.T) {
	r := newTestResolver(t, frameworkAPI())

	pr, err := r.Resolve(context.Background(), "silverstripe/silverstripe-admin#7")
	require.NoError(t, err)
	assert.Equal(t, "silverstripe/admin", pr.PackageName)
	assert.Equal(t, OrgStandard, pr.Org)
	assert.Equal(t, "feature", pr.Branch)
}

func TestResolve_Failures(t *testing.T) {
	r := newTestResolver(t, frameworkAPI())

	for _, ref := range []string{
		"not a ref",
		"silverstripe/silverstripe-framework#999", // missing PR
		"silverstripe/silverstripe-cms#8",         // deleted head repo
		"silverstripe/silverstripe-graphql#9",     // composer.json without a name
	} {
		t.Run(ref, func(t *testing.T) {
			_, err := r.Resolve(context.Background(), ref)
			require.Error(t, err)
			assert.Equal(t, errors.EPullRequestNotFound, errors.GetCode(err))
		})
	}
}

func TestResolveAll_LastWinsPerPackage(t *testing.T) {
	api := frameworkAPI()
	r := newTestResolver(t, api)

	set, err := r.ResolveAll(context.Background(), []string{
		"silverstripe/silverstripe-framework#123",
		"silverstripe/silverstripe-admin#7",
		"silverstripe/silverstripe-framework#456",
	})
	require.NoError(t, err)
	require.Len(t, set, 2)
	assert.Equal(t, "cve-fix", set["silverstripe/framework"].Branch)
	assert.Equal(t, OrgSecurity, set["silverstripe/framework"].Org)
}

func TestResolveAll_OneBadReferenceFailsBatch(t *testing.T) {
	api := frameworkAPI()
	r := newTestResolver(t, api)

	_, err := r.ResolveAll(context.Background(), []string{
		"silverstripe/silverstripe-framework#999",
		"silverstripe/silverstripe-admin#7",
	})
	require.Error(t, err)
	assert.Equal(t, errors.EPullRequestNotFound, errors.GetCode(err))
	assert.Equal(t, []string{"silverstripe/silverstripe-framework/999"}, api.requested)
}

func TestNewResolver_BadAPIURL(t *testing.T) {
	_, err := NewResolver(context.Background(), "t", "://bad", nil)
	require.Error(t, err)
}
