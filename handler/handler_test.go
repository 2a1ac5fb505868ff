package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/balogun-pappy/advoc/config"
	"github.com/balogun-pappy/advoc/handler"
	"github.com/balogun-pappy/advoc/logging"
	"github.com/balogun-pappy/advoc/model"
	"github.com/balogun-pappy/advoc/profile"
	"github.com/balogun-pappy/advoc/session"
	"github.com/balogun-pappy/advoc/store"
)

type env struct {
	ts    *httptest.Server
	reg   *store.Registry
	media config.MediaConfig
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func setupWith(t *testing.T, rl config.RateLimitConfig) *env {
	t.Helper()
	dir := t.TempDir()
	media := config.MediaConfig{
		UploadsDir:         filepath.Join(dir, "uploads"),
		BusinessUploadsDir: filepath.Join(dir, "business_uploads"),
		ProfilePicsDir:     filepath.Join(dir, "profile_pics"),
		DefaultProfilePic:  "default.png",
		MaxUploadBytes:     1 << 20,
	}
	for _, d := range []string{media.UploadsDir, media.BusinessUploadsDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	profiles, err := profile.NewResolver(media.ProfilePicsDir, media.DefaultProfilePic, logging.Nop())
	if err != nil {
		t.Fatal(err)
	}

	reg := store.NewRegistry(store.NewMemoryStore())
	if err := reg.Init(context.Background(), store.BuiltinCollections...); err != nil {
		t.Fatal(err)
	}
	h := handler.New(handler.Deps{
		Registry:  reg,
		Sessions:  session.NewManager("advoc_session", time.Hour, false),
		Profiles:  profiles,
		Clock:     fixedClock{time.UnixMilli(1700000000000)},
		Logger:    logging.Nop(),
		Media:     media,
		Server:    config.ServerConfig{AllowedOrigins: []string{"*"}},
		RateLimit: rl,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "# metrics\n")
		}),
	})
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return &env{ts: ts, reg: reg, media: media}
}

func setup(t *testing.T) *env {
	return setupWith(t, config.RateLimitConfig{RPS: 1000, Burst: 1000})
}

// client returns an HTTP client with its own cookie jar, i.e. one browser.
func client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &http.Client{Jar: jar}
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var v map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	return v
}

func decodeJSONArray(t *testing.T, resp *http.Response) []any {
	t.Helper()
	defer resp.Body.Close()
	var v []any
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	return v
}

func postJSON(t *testing.T, c *http.Client, u string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := c.Post(u, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func get(t *testing.T, c *http.Client, u string) *http.Response {
	t.Helper()
	resp, err := c.Get(u)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func uploadFile(t *testing.T, c *http.Client, u, field, filename, caption string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if caption != "" {
		mw.WriteField("caption", caption)
	}
	if filename != "" {
		fw, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatal(err)
		}
		io.WriteString(fw, "file-bytes")
	}
	mw.Close()
	resp, err := c.Post(u, mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func login(t *testing.T, e *env, username string) *http.Client {
	t.Helper()
	c := client(t)
	body := decodeJSON(t, postJSON(t, c, e.ts.URL+"/signup", map[string]string{"username": username, "password": "pw"}))
	if body["success"] != true {
		t.Fatalf("signup %s: %v", username, body)
	}
	body = decodeJSON(t, postJSON(t, c, e.ts.URL+"/login", map[string]string{"username": username, "password": "pw"}))
	if body["success"] != true {
		t.Fatalf("login %s: %v", username, body)
	}
	return c
}

func TestHealthAndMetrics(t *testing.T) {
	e := setup(t)
	c := client(t)

	resp := get(t, c, e.ts.URL+"/health")
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body := decodeJSON(t, resp); body["status"] != "healthy" {
		t.Fatalf("unexpected health body %v", body)
	}

	resp = get(t, c, e.ts.URL+"/metrics")
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 || !strings.Contains(string(b), "# metrics") {
		t.Fatalf("unexpected metrics response %d %q", resp.StatusCode, b)
	}
}

func TestAuthFlow(t *testing.T) {
	e := setup(t)
	c := client(t)

	body := decodeJSON(t, get(t, c, e.ts.URL+"/auth-check"))
	if body["loggedIn"] != false {
		t.Fatalf("expected loggedIn=false, got %v", body)
	}

	body = decodeJSON(t, postJSON(t, c, e.ts.URL+"/signup", map[string]string{"username": "ada", "password": "pw", "phone": "555"}))
	if body["success"] != true {
		t.Fatalf("signup failed: %v", body)
	}
	body = decodeJSON(t, postJSON(t, c, e.ts.URL+"/signup", map[string]string{"username": "ada", "password": "x"}))
	if body["success"] != false || body["message"] != "Username exists" {
		t.Fatalf("expected Username exists, got %v", body)
	}

	body = decodeJSON(t, postJSON(t, c, e.ts.URL+"/login", map[string]string{"username": "ada", "password": "wrong"}))
	if body["success"] != false || body["message"] != "Invalid credentials" {
		t.Fatalf("expected Invalid credentials, got %v", body)
	}

	// Form-encoded bodies work too.
	resp, err := c.PostForm(e.ts.URL+"/login", url.Values{"username": {"ada"}, "password": {"pw"}})
	if err != nil {
		t.Fatal(err)
	}
	if body = decodeJSON(t, resp); body["success"] != true {
		t.Fatalf("login failed: %v", body)
	}

	body = decodeJSON(t, get(t, c, e.ts.URL+"/auth-check"))
	if body["loggedIn"] != true || body["username"] != "ada" {
		t.Fatalf("expected ada logged in, got %v", body)
	}

	decodeJSON(t, postJSON(t, c, e.ts.URL+"/logout", nil))
	body = decodeJSON(t, get(t, c, e.ts.URL+"/auth-check"))
	if body["loggedIn"] != false {
		t.Fatalf("expected logged out, got %v", body)
	}
}

func TestSignupValidation(t *testing.T) {
	e := setup(t)
	resp := postJSON(t, client(t), e.ts.URL+"/signup", map[string]string{"username": "", "password": "pw"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if body := decodeJSON(t, resp); body["success"] != false {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestUploadAndFeed(t *testing.T) {
	e := setup(t)
	ada := login(t, e, "ada")
	os.WriteFile(filepath.Join(e.media.ProfilePicsDir, "ada.jpg"), []byte("pic"), 0o644)

	body := decodeJSON(t, uploadFile(t, client(t), e.ts.URL+"/upload", "media", "cat.png", "hi"))
	if body["message"] != "Not logged in" {
		t.Fatalf("expected Not logged in, got %v", body)
	}
	body = decodeJSON(t, uploadFile(t, ada, e.ts.URL+"/upload", "media", "", "no file"))
	if body["message"] != "No file uploaded" {
		t.Fatalf("expected No file uploaded, got %v", body)
	}

	body = decodeJSON(t, uploadFile(t, ada, e.ts.URL+"/upload", "media", "cat.png", "hi"))
	if body["success"] != true {
		t.Fatalf("upload failed: %v", body)
	}
	body = decodeJSON(t, uploadFile(t, ada, e.ts.URL+"/upload", "media", "clip.mp4", ""))
	if body["success"] != true {
		t.Fatalf("upload failed: %v", body)
	}

	items := decodeJSONArray(t, get(t, ada, e.ts.URL+"/images"))
	if len(items) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(items))
	}
	first := items[0].(map[string]any)
	filename := first["filename"].(string)
	if !strings.HasSuffix(filename, "-cat.png") {
		t.Fatalf("unexpected stored filename %q", filename)
	}
	if first["caption"] != "hi" || first["type"] != "image" || first["user"] != "ada" || first["likes"] != float64(0) {
		t.Fatalf("unexpected post %v", first)
	}
	if first["userProfile"] != "ada.jpg" {
		t.Fatalf("expected userProfile=ada.jpg, got %v", first["userProfile"])
	}
	if items[1].(map[string]any)["type"] != "video" {
		t.Fatalf("expected video, got %v", items[1])
	}
	if _, err := os.Stat(filepath.Join(e.media.UploadsDir, filename)); err != nil {
		t.Fatalf("uploaded file missing: %v", err)
	}

	// The business feed is separate.
	if biz := decodeJSONArray(t, get(t, ada, e.ts.URL+"/business/images")); len(biz) != 0 {
		t.Fatalf("expected empty business feed, got %v", biz)
	}
}

func TestLikesAndComments(t *testing.T) {
	e := setup(t)
	ada := login(t, e, "ada")
	ctx := context.Background()
	posts, _ := e.reg.Get(store.Posts)
	posts.Append(ctx, store.Record{"filename": "a.png", "likes": float64(0), "comments": []any{}, "user": "ada"})

	for want := 1.0; want <= 3; want++ {
		body := decodeJSON(t, postJSON(t, client(t), e.ts.URL+"/like/a.png", nil))
		if body["likes"] != want {
			t.Fatalf("expected likes=%v, got %v", want, body)
		}
	}
	resp := postJSON(t, ada, e.ts.URL+"/like/missing.png", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if body := decodeJSON(t, resp); body["error"] != "File not found" {
		t.Fatalf("unexpected body %v", body)
	}

	body := decodeJSON(t, postJSON(t, client(t), e.ts.URL+"/comments/a.png", map[string]string{"text": "hi"}))
	if body["message"] != "Not logged in" {
		t.Fatalf("expected Not logged in, got %v", body)
	}
	body = decodeJSON(t, postJSON(t, ada, e.ts.URL+"/comments/a.png", map[string]string{"text": "   "}))
	if body["message"] != "Empty comment" {
		t.Fatalf("expected Empty comment, got %v", body)
	}
	resp = postJSON(t, ada, e.ts.URL+"/comments/missing.png", map[string]string{"text": "hi"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if body := decodeJSON(t, resp); body["message"] != "File not found" {
		t.Fatalf("unexpected body %v", body)
	}

	body = decodeJSON(t, postJSON(t, ada, e.ts.URL+"/comments/a.png", map[string]string{"text": "nice"}))
	if body["success"] != true {
		t.Fatalf("comment failed: %v", body)
	}
	comments := body["comments"].([]any)
	if len(comments) != 1 || comments[0].(map[string]any)["user"] != "ada" {
		t.Fatalf("unexpected comments %v", comments)
	}

	listed := decodeJSONArray(t, get(t, ada, e.ts.URL+"/comments/a.png"))
	if len(listed) != 1 || listed[0].(map[string]any)["text"] != "nice" {
		t.Fatalf("unexpected listed comments %v", listed)
	}
	resp = get(t, ada, e.ts.URL+"/comments/missing.png")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if arr := decodeJSONArray(t, resp); len(arr) != 0 {
		t.Fatalf("expected [], got %v", arr)
	}

	rec, err := posts.FindByKey(ctx, model.PostKey, "a.png")
	if err != nil {
		t.Fatal(err)
	}
	if rec["likes"] != float64(3) {
		t.Fatalf("expected persisted likes=3, got %v", rec["likes"])
	}
}

func TestBusinessFeed(t *testing.T) {
	e := setup(t)
	ada := login(t, e, "ada")

	body := decodeJSON(t, uploadFile(t, ada, e.ts.URL+"/business/upload", "media", "menu.jpg", "open"))
	if body["success"] != true {
		t.Fatalf("upload failed: %v", body)
	}
	items := decodeJSONArray(t, get(t, ada, e.ts.URL+"/business/images"))
	if len(items) != 1 {
		t.Fatalf("expected 1 business post, got %d", len(items))
	}
	filename := items[0].(map[string]any)["filename"].(string)
	if _, err := os.Stat(filepath.Join(e.media.BusinessUploadsDir, filename)); err != nil {
		t.Fatalf("business upload missing: %v", err)
	}
	if items[0].(map[string]any)["userProfile"] != "default.png" {
		t.Fatalf("expected default profile pic, got %v", items[0])
	}

	body = decodeJSON(t, postJSON(t, ada, e.ts.URL+"/business/like/"+url.PathEscape(filename), nil))
	if body["likes"] != float64(1) {
		t.Fatalf("expected likes=1, got %v", body)
	}
	// A business post is not visible on the media routes.
	resp := postJSON(t, ada, e.ts.URL+"/like/"+url.PathEscape(filename), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 on media feed, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	body = decodeJSON(t, postJSON(t, ada, e.ts.URL+"/business/comments/"+url.PathEscape(filename), map[string]string{"text": "yum"}))
	if body["success"] != true {
		t.Fatalf("comment failed: %v", body)
	}
}

func TestDirectMessages(t *testing.T) {
	e := setup(t)
	ada := login(t, e, "ada")
	bob := login(t, e, "bob")
	carl := login(t, e, "carl")

	body := decodeJSON(t, postJSON(t, client(t), e.ts.URL+"/dm/ada/bob", map[string]string{"message": "hi"}))
	if body["message"] != "Not logged in" {
		t.Fatalf("expected Not logged in, got %v", body)
	}
	body = decodeJSON(t, postJSON(t, ada, e.ts.URL+"/dm/ada/bob", map[string]string{"message": ""}))
	if body["message"] != "Message empty" {
		t.Fatalf("expected Message empty, got %v", body)
	}

	decodeJSON(t, postJSON(t, ada, e.ts.URL+"/dm/ada/bob", map[string]string{"message": "hi bob"}))
	decodeJSON(t, postJSON(t, bob, e.ts.URL+"/dm/bob/ada", map[string]string{"message": "hi ada"}))
	decodeJSON(t, postJSON(t, carl, e.ts.URL+"/dm/carl/ada", map[string]string{"message": "psst"}))

	msgs := decodeJSONArray(t, get(t, bob, e.ts.URL+"/dm/bob/ada"))
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %v", msgs)
	}
	m0 := msgs[0].(map[string]any)
	if m0["from"] != "ada" || m0["to"] != "bob" || m0["message"] != "hi bob" || m0["timestamp"] != float64(1700000000000) {
		t.Fatalf("unexpected first message %v", m0)
	}

	resp := get(t, carl, e.ts.URL+"/dm/ada/bob")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-participant, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestProfilePicture(t *testing.T) {
	e := setup(t)
	ada := login(t, e, "ada")
	login(t, e, "bob")

	body := decodeJSON(t, get(t, ada, e.ts.URL+"/profile-pic/ada"))
	if body["pic"] != "default.png" {
		t.Fatalf("expected default.png, got %v", body)
	}

	body = decodeJSON(t, uploadFile(t, ada, e.ts.URL+"/profile-pic/bob", "profilePic", "me.png", ""))
	if body["message"] != "Unauthorized" {
		t.Fatalf("expected Unauthorized, got %v", body)
	}

	body = decodeJSON(t, uploadFile(t, ada, e.ts.URL+"/profile-pic/ada", "profilePic", "me.PNG", ""))
	if body["success"] != true || body["pic"] != "ada.png" {
		t.Fatalf("unexpected upload response %v", body)
	}
	body = decodeJSON(t, get(t, ada, e.ts.URL+"/profile-pic/ada"))
	if body["pic"] != "ada.png" {
		t.Fatalf("expected ada.png, got %v", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	e := setup(t)
	req, _ := http.NewRequest(http.MethodOptions, e.ts.URL+"/login", nil)
	req.Header.Set("Origin", "https://app.example")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Fatalf("expected echoed origin, got %q", got)
	}
	if resp.Header.Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatal("expected credentials to be allowed")
	}
}

func TestRateLimit(t *testing.T) {
	e := setupWith(t, config.RateLimitConfig{RPS: 0.001, Burst: 2})
	c := client(t)

	for i := range 2 {
		resp := postJSON(t, c, e.ts.URL+"/login", map[string]string{"username": "x", "password": "y"})
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, resp.StatusCode)
		}
	}
	resp := postJSON(t, c, e.ts.URL+"/login", map[string]string{"username": "x", "password": "y"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}

	// Reads are not limited.
	resp = get(t, c, e.ts.URL+"/health")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for GET, got %d", resp.StatusCode)
	}
}

func TestStorageFailure(t *testing.T) {
	e := setup(t)
	ada := login(t, e, "ada")
	posts, _ := e.reg.Get(store.Posts)
	posts.Append(context.Background(), store.Record{"filename": "a.png", "likes": "lots", "user": "ada"})

	resp := postJSON(t, ada, e.ts.URL+"/like/a.png", nil)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	// The cause is logged, not sent to the client.
	if body := decodeJSON(t, resp); body["detail"] != "storage failure" {
		t.Fatalf("expected generic detail, got %v", body)
	}
}
