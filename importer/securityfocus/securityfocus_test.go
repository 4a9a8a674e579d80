package securityfocus

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openwebvulndb/openwebvulndb-tools/importer/faulttolerant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const infoTab = `<html><body>
<div id="vulnerability">
<span class="title">WordPress Audio Player Plugin 'playerID' Cross Site Scripting Vulnerability</span><br/><br/>
<table cellpadding="4" cellspacing="0" border="0">
<tr><td><span class="label">Bugtraq ID:</span></td><td>%s</td></tr>
<tr><td><span class="label">Class:</span></td><td>Input Validation Error</td></tr>
<tr><td><span class="label">CVE:</span></td><td>CVE-2013-1464<br/>CVE-2013-1465<br/></td></tr>
<tr><td><span class="label">Remote:</span></td><td>Yes</td></tr>
<tr><td><span class="label">Local:</span></td><td>No</td></tr>
<tr><td><span class="label">Published:</span></td><td>Feb 04 2013 12:00AM</td></tr>
<tr><td><span class="label">Updated:</span></td><td>Sep 04 2016 08:00PM</td></tr>
<tr><td><span class="label">Credit:</span></td><td>Jane   Doe</td></tr>
<tr><td><span class="label">Vulnerable:</span></td><td>WordPress Audio Player 2.0.4.1<br/>WordPress Audio Player 2.0.4<br/></td></tr>
<tr><td><span class="label">Not Vulnerable:</span></td><td>WordPress Audio Player 2.0.4.6<br/></td></tr>
</table>
</div>
</body></html>`

const referencesTab = `<html><body>
<div id="vulnerability">
<span class="title">WordPress Audio Player Plugin 'playerID' Cross Site Scripting Vulnerability</span><br/><br/>
<ul>
<li><a href="http://wordpress.org/extend/plugins/audio-player/">Audio Player Homepage</a> (WordPress)<br/></li>
<li><a href="http://www.example.com/advisory.txt">Advisory</a><br/></li>
</ul>
</div>
</body></html>`

const textTab = `<html><body>
<div id="vulnerability">
<span class="title">WordPress Audio Player Plugin</span><br/><br/>
Updates are available. Please see the references.
</div>
</body></html>`

const listingPage = `<html><body><table>
<tr><td><a href="/bid/57755">WordPress Audio Player</a></td></tr>
<tr><td><a href="/bid/57755">duplicate</a></td></tr>
<tr><td><a href="https://www.securityfocus.com/bid/60001/">Other</a></td></tr>
<tr><td><a href="/about">About</a></td></tr>
</table></body></html>`

func TestParseInfo(t *testing.T) {
	require := require.New(t)
	adv := &Advisory{}

	err := ParseInfo(strings.NewReader(fmt.Sprintf(infoTab, "57755")), adv)
	require.NoError(err)

	require.Equal("57755", adv.ID)
	require.Equal("WordPress Audio Player Plugin 'playerID' Cross Site Scripting Vulnerability", adv.Title)
	require.Equal("Input Validation Error", adv.Class)
	require.Equal([]string{"CVE-2013-1464", "CVE-2013-1465"}, adv.CVEs)
	require.True(adv.Remote.Unwrap())
	require.False(adv.Local.Unwrap())
	require.Equal(time.Date(2013, 2, 4, 0, 0, 0, 0, time.UTC), adv.Published.Unwrap().Time)
	require.Equal(time.Date(2016, 9, 4, 20, 0, 0, 0, time.UTC), adv.Updated.Unwrap().Time)
	require.Equal("Jane Doe", adv.Credit)
	require.Equal([]string{"WordPress Audio Player 2.0.4.1", "WordPress Audio Player 2.0.4"}, adv.Vulnerable)
	require.Equal([]string{"2.0.4.1", "2.0.4"}, adv.VulnerableVersions())
	require.Equal([]string{"2.0.4.6"}, adv.FixedVersions())
	require.Equal([]string{"2.0.4.1", "2.0.4", "2.0.4.6"}, adv.ReferencedVersions())
}

func TestParseInfoWithoutSection(t *testing.T) {
	err := ParseInfo(strings.NewReader("<html><body>Not found</body></html>"), &Advisory{})

	require.Error(t, err)
}

func TestParseReferences(t *testing.T) {
	require := require.New(t)
	adv := &Advisory{}

	require.NoError(ParseReferences(strings.NewReader(referencesTab), adv))

	require.Equal([]Reference{
		{Description: "Audio Player Homepage", URL: "http://wordpress.org/extend/plugins/audio-player/"},
		{Description: "Advisory", URL: "http://www.example.com/advisory.txt"},
	}, adv.References)
	require.Equal([]string{
		"http://wordpress.org/extend/plugins/audio-player/",
		"http://www.example.com/advisory.txt",
	}, adv.ReferenceURLs())
}

func TestParseText(t *testing.T) {
	body, err := ParseText(strings.NewReader(textTab))

	require.NoError(t, err)
	assert.Equal(t, "Updates are available. Please see the references.", body)
}

func TestParseListing(t *testing.T) {
	ids, err := ParseListing(strings.NewReader(listingPage))

	require.NoError(t, err)
	assert.Equal(t, []string{"57755", "60001"}, ids)
}

func TestProductVersion(t *testing.T) {
	assert := assert.New(t)

	v, ok := ProductVersion("WordPress Audio Player 2.0.4.1")
	assert.True(ok)
	assert.Equal("2.0.4.1", v)

	v, ok = ProductVersion("WordPress WordPress v4.4")
	assert.True(ok)
	assert.Equal("4.4", v)

	_, ok = ProductVersion("WordPress Audio Player")
	assert.False(ok)

	_, ok = ProductVersion("")
	assert.False(ok)
}

// fakeSite serves a listing and the tabs of every id in tabs. Ids listed in
// broken answer 404 on their info tab.
func fakeSite(t *testing.T, broken ...string) *httptest.Server {
	t.Helper()
	brokenIDs := map[string]bool{}
	for _, id := range broken {
		brokenIDs[id] = true
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/cgi-bin/index.cgi", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		r.ParseForm()
		if r.PostForm.Get("o") != "0" || r.PostForm.Get("l") != "30" {
			fmt.Fprint(w, "<html><body></body></html>")
			return
		}
		fmt.Fprint(w, `<html><body><a href="/bid/100">a</a><a href="/bid/200">b</a><a href="/bid/300">c</a></body></html>`)
	})
	mux.HandleFunc("/bid/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 3 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		id, tab := parts[1], parts[2]
		if brokenIDs[id] && tab == "info" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch tab {
		case "info":
			fmt.Fprintf(w, infoTab, id)
		case "references":
			fmt.Fprint(w, referencesTab)
		default:
			fmt.Fprint(w, textTab)
		}
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func testClient(server *httptest.Server) *Client {
	return &Client{
		BaseURL: server.URL,
		Vendor:  "WordPress",
		HTTP:    &faulttolerant.Client{HTTP: server.Client(), MaxRetries: 1, Backoff: time.Millisecond},
	}
}

func TestFetchAdvisory(t *testing.T) {
	require := require.New(t)
	client := testClient(fakeSite(t))

	adv, err := client.FetchAdvisory(context.Background(), "100")

	require.NoError(err)
	require.Equal("100", adv.ID)
	require.Len(adv.References, 2)
	require.Equal("Updates are available. Please see the references.", adv.Solution)
	require.Equal(adv.Solution, adv.Exploit)
}

func TestFetchAdvisorySkipsOnClientError(t *testing.T) {
	client := testClient(fakeSite(t, "100"))

	_, err := client.FetchAdvisory(context.Background(), "100")

	require.True(t, faulttolerant.IsNetworkError(err))
}

func TestPipelineRunPages(t *testing.T) {
	require := require.New(t)
	client := testClient(fakeSite(t, "200"))

	var mu sync.Mutex
	var handled []string
	pipeline := &Pipeline{
		Client:   client,
		Fetchers: 2,
		Handle: func(adv *Advisory) error {
			mu.Lock()
			defer mu.Unlock()
			handled = append(handled, adv.ID)
			if adv.ID == "300" {
				return fmt.Errorf("rejected")
			}
			return nil
		},
	}

	stats, err := pipeline.RunPages(context.Background(), 2)
	require.NoError(err)

	sort.Strings(handled)
	require.Equal([]string{"100", "300"}, handled)
	require.Equal(Stats{Listed: 3, Fetched: 2, Handled: 1, Failed: 2}, stats)
}

func TestPipelineRunIDs(t *testing.T) {
	require := require.New(t)
	client := testClient(fakeSite(t))

	var handled []string
	pipeline := &Pipeline{
		Client:   client,
		Fetchers: 3,
		Handle: func(adv *Advisory) error {
			handled = append(handled, adv.ID)
			return nil
		},
	}

	stats, err := pipeline.RunIDs(context.Background(), []string{"7", "8"})
	require.NoError(err)

	sort.Strings(handled)
	require.Equal([]string{"7", "8"}, handled)
	require.Equal(2, stats.Handled)
}
