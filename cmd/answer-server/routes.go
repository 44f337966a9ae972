package main

import (
	"cmp"
	"context"
	"encoding/json"
	"slices"
	"strconv"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"answer/pkg/http"
	"answer/pkg/router"
	"answer/pkg/server"
)

// User is the resource served under /api/v1/users.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// userStore keeps users in memory.
type userStore struct {
	users  *xsync.MapOf[string, User]
	nextID atomic.Uint64
}

func newUserStore() *userStore {
	return &userStore{users: xsync.NewMapOf[string, User]()}
}

// setupRoutes registers the API on table. Paths matching no route fall
// through to the server's static directory when one is configured.
func setupRoutes(table *router.Table, ready http.Handler, staticDir string) {
	table.Handle("/health", server.HealthHandler())
	table.Handle("/ready", ready)

	store := newUserStore()
	users := router.New()
	users.Handle("/", router.Methods{
		http.MethodGet:  http.HandlerFunc(store.list),
		http.MethodPost: http.HandlerFunc(store.create),
	})
	users.Handle("/:id", router.Methods{
		http.MethodGet:    http.HandlerFunc(store.get),
		http.MethodDelete: http.HandlerFunc(store.remove),
	})

	api := router.New()
	api.Mount("/users", users)
	table.Mount("/api/v1", api)

	if staticDir != "" {
		table.Handle("/static/*", server.NewStaticFileHandler(staticDir))
	}
}

func (s *userStore) list(ctx context.Context, req *http.Request) (*http.Response, error) {
	all := make([]User, 0, s.users.Size())
	s.users.Range(func(id string, u User) bool {
		all = append(all, u)
		return true
	})
	slices.SortFunc(all, func(a, b User) int {
		ai, _ := strconv.ParseUint(a.ID, 10, 64)
		bi, _ := strconv.ParseUint(b.ID, 10, 64)
		return cmp.Compare(ai, bi)
	})
	return jsonResponse(http.StatusOK, all)
}

func (s *userStore) create(ctx context.Context, req *http.Request) (*http.Response, error) {
	var u User
	if err := json.Unmarshal(req.Body, &u); err != nil || u.Name == "" {
		return http.Text(http.StatusBadRequest, "name required\n"), nil
	}
	u.ID = strconv.FormatUint(s.nextID.Add(1), 10)
	s.users.Store(u.ID, u)
	resp, err := jsonResponse(http.StatusCreated, u)
	if err == nil {
		resp.Header.Set("Location", "/api/v1/users/"+u.ID)
	}
	return resp, err
}

func (s *userStore) get(ctx context.Context, req *http.Request) (*http.Response, error) {
	u, ok := s.users.Load(router.Param(ctx, "id"))
	if !ok {
		return http.Error(http.StatusNotFound), nil
	}
	return jsonResponse(http.StatusOK, u)
}

func (s *userStore) remove(ctx context.Context, req *http.Request) (*http.Response, error) {
	if _, ok := s.users.LoadAndDelete(router.Param(ctx, "id")); !ok {
		return http.Error(http.StatusNotFound), nil
	}
	return &http.Response{StatusCode: http.StatusNoContent, Header: make(http.Header)}, nil
}

func jsonResponse(status int, v any) (*http.Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	resp := http.Text(status, string(body))
	resp.ContentType = "application/json"
	return resp, nil
}
