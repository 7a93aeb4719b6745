package directory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudyy74/diconnect-pairup/internal/models"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestClient(t *testing.T, handler http.Handler) (*GraphClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewGraphClientWithHTTP(srv.Client(), srv.URL, time.Minute, discardLogger)
	if err != nil {
		t.Fatalf("NewGraphClientWithHTTP: %v", err)
	}
	return c, srv
}

func TestGraphClient_ListGroupMembers_Paging(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/groups/G1/members/microsoft.graph.user", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `{"value":[{"id":"u3","givenName":"Cy","userPrincipalName":"cy@contoso.com"}]}`)
			return
		}
		fmt.Fprintf(w, `{"@odata.nextLink":"%s/groups/G1/members/microsoft.graph.user?page=2","value":[
			{"id":"u1","displayName":"Ann Lee","givenName":"Ann","userPrincipalName":"ann@contoso.com"},
			{"id":"u2","givenName":"Bo","userPrincipalName":"bo@contoso.com"}]}`, srvURL)
	})
	c, srv := newTestClient(t, mux)
	srvURL = srv.URL

	users, err := c.ListGroupMembers(context.Background(), "G1")
	if err != nil {
		t.Fatalf("ListGroupMembers returned err: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("expected 3 users, got %d", len(users))
	}
	want := models.DirectoryUser{ID: "u1", DisplayName: "Ann Lee", GivenName: "Ann", UserPrincipalName: "ann@contoso.com"}
	if users[0] != want {
		t.Fatalf("unexpected first user: %#v", users[0])
	}
	if users[2].ID != "u3" {
		t.Fatalf("unexpected last user: %#v", users[2])
	}
}

func TestGraphClient_ListGroupMembers_NotFound(t *testing.T) {
	c, _ := newTestClient(t, http.NotFoundHandler())

	_, err := c.ListGroupMembers(context.Background(), "missing")
	if !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("expected ErrGroupNotFound, got %v", err)
	}
}

func TestGraphClient_GetUser_Cached(t *testing.T) {
	var hits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/users/u1", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		fmt.Fprint(w, `{"id":"u1","givenName":"Ann","userPrincipalName":"ann@contoso.com"}`)
	})
	c, _ := newTestClient(t, mux)

	for i := 0; i < 3; i++ {
		u, err := c.GetUser(context.Background(), "u1")
		if err != nil {
			t.Fatalf("GetUser returned err: %v", err)
		}
		if u.GivenName != "Ann" || u.UserPrincipalName != "ann@contoso.com" {
			t.Fatalf("unexpected user: %#v", u)
		}
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected a single directory call, got %d", got)
	}
}

func TestGraphClient_GetUser_NotFound(t *testing.T) {
	c, _ := newTestClient(t, http.NotFoundHandler())

	_, err := c.GetUser(context.Background(), "ghost")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestGraphClient_UnexpectedStatus(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"code":"TooManyRequests","message":"slow down"}}`)
	}))

	_, err := c.GetUser(context.Background(), "u1")
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("expected ErrUnexpectedStatus, got %v", err)
	}
}

func TestNewGraphClient_ClientCredentials(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"tok","token_type":"Bearer","expires_in":3600}`)
	}))
	defer tokenSrv.Close()

	graphSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"id":"u1","givenName":"Ann"}`)
	}))
	defer graphSrv.Close()

	c, err := NewGraphClient(context.Background(), Config{
		BaseURL:      graphSrv.URL,
		TokenURL:     tokenSrv.URL,
		ClientID:     "id",
		ClientSecret: "secret",
	}, discardLogger)
	if err != nil {
		t.Fatalf("NewGraphClient: %v", err)
	}

	u, err := c.GetUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetUser returned err: %v", err)
	}
	if u.ID != "u1" {
		t.Fatalf("unexpected user: %#v", u)
	}
}

func TestNewGraphClient_Validation(t *testing.T) {
	if _, err := NewGraphClient(context.Background(), Config{ClientID: "id"}, discardLogger); err == nil {
		t.Fatalf("expected error without secret")
	}
	if _, err := NewGraphClient(context.Background(), Config{ClientID: "id", ClientSecret: "s"}, discardLogger); err == nil {
		t.Fatalf("expected error without tenant or token url")
	}
}
