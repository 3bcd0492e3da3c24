package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"

	"gallery/auth"
	"gallery/config"
	"gallery/db"
	"gallery/identity"
	"gallery/models"
	"gallery/realtime"
	"gallery/storage"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type stubIdentity struct {
	profiles map[string]identity.Profile
}

func (s *stubIdentity) LookupByEmail(email string) (*identity.Profile, error) {
	for _, profile := range s.profiles {
		if profile.Email == email {
			p := profile
			return &p, nil
		}
	}
	return nil, nil
}

func (s *stubIdentity) FetchProfile(userID string) (*identity.Profile, error) {
	if profile, ok := s.profiles[userID]; ok {
		p := profile
		return &p, nil
	}
	return nil, nil
}

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	var err error
	db.Instance, err = gorm.Open(sqlite.Open("file:handlers?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		panic(err)
	}
	models.Init()
	bucketDir, err := os.MkdirTemp("", "gallery-handlers-*")
	if err != nil {
		panic(err)
	}
	config.DEFAULT_BUCKET_DIR = bucketDir
	storage.Init()
	manager := realtime.Init(nil)
	models.NotifyPublisher = manager.NotifyUser
	identity.Default = &stubIdentity{profiles: map[string]identity.Profile{}}
	code := m.Run()
	manager.Dispose()
	os.RemoveAll(bucketDir)
	os.Exit(code)
}

// newTestRouter mirrors the route table in main, with the bearer-token
// middleware replaced by a header the tests control
func newTestRouter() *gin.Engine {
	router := gin.New()
	store := cookie.NewStore([]byte("test-session-key"))
	router.Use(sessions.Sessions("gallery_session", store))
	router.Use(func(c *gin.Context) {
		if userID := c.GetHeader("X-Test-User"); userID != "" {
			c.Set("userID", userID)
		}
		c.Next()
	})

	router.POST("/api/galleries", GalleryCreate)
	router.GET("/api/galleries/:slug", GalleryGet)
	router.PATCH("/api/galleries/:slug/title", GalleryRename)
	router.DELETE("/api/galleries/:slug", GalleryDelete)
	router.POST("/api/galleries/:slug/images", ImagePresign)
	router.POST("/api/galleries/:slug/reorder", ImageReorder)
	router.GET("/api/images/:imageID/comments", CommentList)
	router.PUT("/api/upload/direct", DirectUpload)

	authRouter := &auth.Router{Base: router}
	authRouter.GET("/api/galleries", GalleryList)
	authRouter.POST("/api/images/:imageID/star", StarToggle)
	authRouter.POST("/api/images/:imageID/comments", CommentCreate)
	authRouter.POST("/api/galleries/:slug/invites", InviteCreate)
	authRouter.GET("/api/galleries/:slug/invites", InviteList)
	authRouter.POST("/api/auth/verify-magic-link", VerifyMagicLink)
	authRouter.GET("/api/notifications", NotificationList)
	authRouter.POST("/api/notifications/mark-all-read", NotificationMarkAllRead)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(raw)
	} else {
		reader = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-Test-User", userID)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func parseBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	result := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &result))
	return result
}

func makeGallery(t *testing.T, owner string, public bool) *models.Gallery {
	t.Helper()
	gallery := models.NewGallery("Handler Test", owner, false)
	gallery.IsPublic = public
	require.NoError(t, db.Instance.Create(&gallery).Error)
	return &gallery
}

func makeImage(t *testing.T, galleryID uint64, position int) *models.Image {
	t.Helper()
	img := models.Image{
		GalleryID:        galleryID,
		BucketID:         storage.GetDefaultStorage().GetBucket().ID,
		OriginalFilename: "x.jpg",
		Position:         position,
	}
	require.NoError(t, db.Instance.Create(&img).Error)
	img.PublicID = img.GetKey()
	db.Instance.Updates(&img)
	return &img
}

func TestPrivateGalleryIs403NotFound404(t *testing.T) {
	router := newTestRouter()
	gallery := makeGallery(t, "auth0|policy-owner", false)

	// Unknown slug: a plain 404
	recorder := doJSON(t, router, http.MethodGet, "/api/galleries/nosuchslug", "auth0|anyone", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)

	// Existing but inaccessible: 403 with the is_private marker so the
	// client can offer "request access" instead of a dead end
	recorder = doJSON(t, router, http.MethodGet, "/api/galleries/"+gallery.Slug, "auth0|stranger", nil)
	assert.Equal(t, http.StatusForbidden, recorder.Code)
	body := parseBody(t, recorder)
	assert.Equal(t, true, body["is_private"])
	assert.Equal(t, false, body["requires_auth"])

	// Anonymous gets the same shape plus requires_auth
	recorder = doJSON(t, router, http.MethodGet, "/api/galleries/"+gallery.Slug, "", nil)
	assert.Equal(t, http.StatusForbidden, recorder.Code)
	body = parseBody(t, recorder)
	assert.Equal(t, true, body["requires_auth"])

	// The owner sails through
	recorder = doJSON(t, router, http.MethodGet, "/api/galleries/"+gallery.Slug, "auth0|policy-owner", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestPublicGalleryReadableByAnyone(t *testing.T) {
	router := newTestRouter()
	gallery := makeGallery(t, "auth0|public-owner", true)
	img := makeImage(t, gallery.ID, 0)

	recorder := doJSON(t, router, http.MethodGet, "/api/galleries/"+gallery.Slug, "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	body := parseBody(t, recorder)
	assert.Equal(t, string(models.RoleView), body["role"])
	assert.Equal(t, false, body["is_owner"])

	// Viewing is fine, editing is not
	recorder = doJSON(t, router, http.MethodPatch, "/api/galleries/"+gallery.Slug+"/title",
		"auth0|random-visitor", gin.H{"title": "defaced"})
	assert.Equal(t, http.StatusForbidden, recorder.Code)
	_ = img
}

func TestViewRoleCannotStar(t *testing.T) {
	router := newTestRouter()
	gallery := makeGallery(t, "auth0|star-owner", true)
	img := makeImage(t, gallery.ID, 0)

	recorder := doJSON(t, router, http.MethodPost,
		"/api/images/"+uintToString(img.ID)+"/star",
		"auth0|view-only", nil)
	assert.Equal(t, http.StatusForbidden, recorder.Code)
}

func TestStarToggleAndNotification(t *testing.T) {
	router := newTestRouter()
	owner := "auth0|starred-owner"
	gallery := makeGallery(t, owner, false)
	img := makeImage(t, gallery.ID, 0)
	commenter := "auth0|starrer-handler"
	_, err := models.UpsertInvite(gallery.ID, "starrer@example.com", models.RoleComment, &commenter)
	require.NoError(t, err)

	path := "/api/images/" + uintToString(img.ID) + "/star"
	recorder := doJSON(t, router, http.MethodPost, path, commenter, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	body := parseBody(t, recorder)
	assert.Equal(t, true, body["is_starred"])
	assert.EqualValues(t, 1, body["star_count"])

	// The owner got exactly one star notification
	recorder = doJSON(t, router, http.MethodGet, "/api/notifications", owner, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	body = parseBody(t, recorder)
	assert.EqualValues(t, 1, body["unseen_count"])

	// Unstar flips back and stays silent
	recorder = doJSON(t, router, http.MethodPost, path, commenter, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	body = parseBody(t, recorder)
	assert.Equal(t, false, body["is_starred"])

	recorder = doJSON(t, router, http.MethodPost, "/api/notifications/mark-all-read", owner, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	recorder = doJSON(t, router, http.MethodGet, "/api/notifications", owner, nil)
	body = parseBody(t, recorder)
	assert.EqualValues(t, 0, body["unseen_count"])
}

func TestCommentRoundTrip(t *testing.T) {
	router := newTestRouter()
	gallery := makeGallery(t, "auth0|comment-owner", false)
	img := makeImage(t, gallery.ID, 0)
	commenter := "auth0|commenter-handler"
	_, err := models.UpsertInvite(gallery.ID, "ch@example.com", models.RoleComment, &commenter)
	require.NoError(t, err)

	path := "/api/images/" + uintToString(img.ID) + "/comments"
	recorder := doJSON(t, router, http.MethodPost, path, commenter, gin.H{
		"content":    "nice shot",
		"x_position": 33.3,
		"y_position": 66.6,
	})
	require.Equal(t, http.StatusOK, recorder.Code)
	created := parseBody(t, recorder)
	parentID := created["id"]

	// A reply to a reply is rejected flat out
	recorder = doJSON(t, router, http.MethodPost, path, commenter, gin.H{
		"content":   "reply",
		"parent_id": parentID,
	})
	require.Equal(t, http.StatusOK, recorder.Code)
	replyID := parseBody(t, recorder)["id"]
	recorder = doJSON(t, router, http.MethodPost, path, commenter, gin.H{
		"content":   "too deep",
		"parent_id": replyID,
	})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = doJSON(t, router, http.MethodGet, path, "auth0|comment-owner", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	body := parseBody(t, recorder)
	assert.Len(t, body["comments"], 2)
}

func TestReorderConflictIs409(t *testing.T) {
	router := newTestRouter()
	owner := "auth0|reorder-owner"
	gallery := makeGallery(t, owner, false)
	a := makeImage(t, gallery.ID, 0)
	b := makeImage(t, gallery.ID, 1)

	// Two tabs both loaded the gallery at version 0
	path := "/api/galleries/" + gallery.Slug + "/reorder"
	recorder := doJSON(t, router, http.MethodPost, path, owner, gin.H{
		"order":   []uint64{b.ID, a.ID},
		"version": 0,
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	// The slower tab's stale version loses and changes nothing
	recorder = doJSON(t, router, http.MethodPost, path, owner, gin.H{
		"order":   []uint64{a.ID, b.ID},
		"version": 0,
	})
	assert.Equal(t, http.StatusConflict, recorder.Code)
	var winner models.Image
	require.NoError(t, db.Instance.First(&winner, b.ID).Error)
	assert.Equal(t, 0, winner.Position)

	// Omitting the version opts out of the check
	recorder = doJSON(t, router, http.MethodPost, path, owner, gin.H{
		"order": []uint64{a.ID, b.ID},
	})
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestDirectUploadRequiresUploadPermission(t *testing.T) {
	router := newTestRouter()
	owner := "auth0|du-owner"
	gallery := makeGallery(t, owner, false)
	img := makeImage(t, gallery.ID, 0)

	putDirect := func(userID, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPut, "/api/upload/direct?key="+img.PublicID,
			bytes.NewBufferString(body))
		if userID != "" {
			req.Header.Set("X-Test-User", userID)
		}
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, req)
		return recorder
	}

	recorder := putDirect(owner, "original")
	require.Equal(t, http.StatusOK, recorder.Code)

	// Keys are derivable from row ids, so possession of one grants
	// nothing on a private gallery
	recorder = putDirect("", "defaced")
	assert.Equal(t, http.StatusForbidden, recorder.Code)
	recorder = putDirect("auth0|du-stranger", "defaced")
	assert.Equal(t, http.StatusForbidden, recorder.Code)

	stored, err := os.ReadFile(config.DEFAULT_BUCKET_DIR + "/" + img.PublicID)
	require.NoError(t, err)
	assert.Equal(t, "original", string(stored))
}

func TestPresignIdempotencyKeySurvivesRejection(t *testing.T) {
	router := newTestRouter()
	owner := "auth0|presign-owner"
	gallery := makeGallery(t, owner, false)
	path := "/api/galleries/" + gallery.Slug + "/images"

	send := func(body interface{}) *httptest.ResponseRecorder {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewBuffer(raw))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-User", owner)
		req.Header.Set("Idempotency-Key", "presign-key-1")
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, req)
		return recorder
	}

	// A rejected request must not burn the key
	require.Equal(t, http.StatusBadRequest, send(gin.H{}).Code)
	require.Equal(t, http.StatusBadRequest, send(gin.H{}).Code)

	valid := gin.H{"files": []gin.H{{"filename": "a.jpg", "mime_type": "image/jpeg"}}}
	recorder := send(valid)
	require.Equal(t, http.StatusOK, recorder.Code)
	body := parseBody(t, recorder)
	assert.NotEmpty(t, body["uploads"])

	// A replay after success does
	assert.Equal(t, http.StatusTooManyRequests, send(valid).Code)
}

func TestInviteCreateAndList(t *testing.T) {
	router := newTestRouter()
	owner := "auth0|invite-owner"
	identity.Default = &stubIdentity{profiles: map[string]identity.Profile{
		"auth0|registered-invitee": {UserID: "auth0|registered-invitee", Email: "reg@example.com"},
	}}
	gallery := makeGallery(t, owner, false)

	path := "/api/galleries/" + gallery.Slug + "/invites"
	// Registered address binds immediately
	recorder := doJSON(t, router, http.MethodPost, path, owner, gin.H{"email": "reg@example.com", "role": "Edit"})
	require.Equal(t, http.StatusOK, recorder.Code)
	body := parseBody(t, recorder)
	assert.Equal(t, false, body["pending"])

	// Unknown address goes pending with a magic link
	recorder = doJSON(t, router, http.MethodPost, path, owner, gin.H{"email": "new@example.com", "role": "View"})
	require.Equal(t, http.StatusOK, recorder.Code)
	body = parseBody(t, recorder)
	assert.Equal(t, true, body["pending"])

	// Bad role is a 400
	recorder = doJSON(t, router, http.MethodPost, path, owner, gin.H{"email": "x@example.com", "role": "owner"})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	// Only managers may see the collaborator list
	recorder = doJSON(t, router, http.MethodGet, path, "auth0|nosy", nil)
	assert.Equal(t, http.StatusForbidden, recorder.Code)
	recorder = doJSON(t, router, http.MethodGet, path, owner, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	body = parseBody(t, recorder)
	assert.Len(t, body["collaborators"], 3) // owner + 2 invites

	// The new editor can now open the private gallery
	recorder = doJSON(t, router, http.MethodGet, "/api/galleries/"+gallery.Slug, "auth0|registered-invitee", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestMagicLinkClaim(t *testing.T) {
	router := newTestRouter()
	owner := "auth0|link-owner"
	gallery := makeGallery(t, owner, false)

	path := "/api/galleries/" + gallery.Slug + "/invites"
	recorder := doJSON(t, router, http.MethodPost, path, owner, gin.H{"email": "fresh@example.com", "role": "Comment"})
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, true, parseBody(t, recorder)["pending"])

	var invite models.Invite
	require.NoError(t, db.Instance.Where("gallery_id = ? AND email = ?", gallery.ID, "fresh@example.com").First(&invite).Error)
	require.NotNil(t, invite.Token)

	// The invitee signs up, then presents the token from the email
	newcomer := "auth0|fresh-signup"
	recorder = doJSON(t, router, http.MethodPost, "/api/auth/verify-magic-link", newcomer, gin.H{"token": *invite.Token})
	require.Equal(t, http.StatusOK, recorder.Code)
	body := parseBody(t, recorder)
	assert.Equal(t, gallery.Slug, body["gallery_slug"])
	assert.Equal(t, string(models.RoleComment), body["role"])

	// The claimed role opens the private gallery
	recorder = doJSON(t, router, http.MethodGet, "/api/galleries/"+gallery.Slug, newcomer, nil)
	assert.Equal(t, http.StatusOK, recorder.Code)

	// A burned token cannot be claimed again
	recorder = doJSON(t, router, http.MethodPost, "/api/auth/verify-magic-link", "auth0|too-late", gin.H{"token": *invite.Token})
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestAuthRouterRejectsAnonymous(t *testing.T) {
	router := newTestRouter()
	recorder := doJSON(t, router, http.MethodGet, "/api/notifications", "", nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestGuestGalleryLifecycle(t *testing.T) {
	router := newTestRouter()

	// Anonymous create mints a guest session cookie
	req := httptest.NewRequest(http.MethodPost, "/api/galleries", bytes.NewBufferString("title=Party"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusOK, recorder.Code)
	body := parseBody(t, recorder)
	assert.Equal(t, true, body["is_public"])
	cookies := recorder.Result().Cookies()
	require.NotEmpty(t, cookies)

	slug := body["slug"].(string)
	// The same browser (cookie) manages the gallery
	req = httptest.NewRequest(http.MethodPatch, "/api/galleries/"+slug+"/title",
		bytes.NewBufferString(`{"title":"Renamed"}`))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusOK, recorder.Code)

	// A different browser cannot
	recorder = doJSON(t, router, http.MethodPatch, "/api/galleries/"+slug+"/title", "",
		gin.H{"title": "hijack"})
	assert.Equal(t, http.StatusForbidden, recorder.Code)
}

func uintToString(v uint64) string {
	return strconv.FormatUint(v, 10)
}
