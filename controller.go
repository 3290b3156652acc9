package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hbmusic/songd/internal/cache"
	"github.com/hbmusic/songd/internal/favorites"
	"github.com/hbmusic/songd/internal/music"
	"github.com/hbmusic/songd/internal/resolve"
	"github.com/hbmusic/songd/internal/search"
)

type server struct {
	engine  *resolve.Engine
	agg     *search.Aggregator
	catalog *search.Catalog
	store   *cache.Store
	favs    favorites.Store
	main    music.Provider
	kuwo    music.Provider
}

type trackRequest struct {
	ID           string `json:"id" form:"id"`
	Rid          string `json:"rid" form:"rid"`
	Name         string `json:"name" form:"name"`
	Artist       string `json:"artist" form:"artist"`
	Source       string `json:"source" form:"source"`
	ForceRefresh bool   `json:"forceRefresh" form:"forceRefresh"`

	// player-side snapshot, used to answer whether the fresh URL may
	// interrupt whatever is currently playing
	HasError     bool    `json:"hasError" form:"hasError"`
	NetworkEmpty bool    `json:"networkEmpty" form:"networkEmpty"`
	Position     float64 `json:"position" form:"position"`
}

func (r *trackRequest) playbackState() resolve.PlaybackState {
	return resolve.PlaybackState{
		HasError:        r.HasError,
		NetworkEmpty:    r.NetworkEmpty,
		PositionSeconds: r.Position,
		ForceRefresh:    r.ForceRefresh,
	}
}

func (r *trackRequest) track() *music.Track {
	t := &music.Track{
		ID:           r.ID,
		Rid:          r.Rid,
		Name:         r.Name,
		Artist:       r.Artist,
		ForceRefresh: r.ForceRefresh,
	}
	switch r.Source {
	case music.Kuwo.String():
		t.Source = music.Kuwo
	case music.Netease.String():
		t.Source = music.Netease
	default:
		// no explicit source: trust the id tag
		if _, src, tagged := music.StripID(r.ID); tagged {
			t.Source = src
		}
	}
	return t
}

func (s *server) search(c *gin.Context) {
	keywords := c.Query("keywords")
	if keywords == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "keywords required"})
		return
	}
	results, hasMore, err := s.agg.Search(c.Request.Context(), keywords)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "hasMore": hasMore})
}

func (s *server) searchMore(c *gin.Context) {
	added, hasMore, err := s.agg.LoadMore(c.Request.Context())
	switch {
	case errors.Is(err, search.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"added": added, "hasMore": hasMore})
	}
}

func (s *server) resolveTrack(c *gin.Context) {
	var req trackRequest
	if err := c.ShouldBind(&req); err != nil || req.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "track id required"})
		return
	}
	res, err := s.engine.Resolve(c.Request.Context(), req.track())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"resolution": res,
		"swapSource": resolve.ShouldSwapSource(req.playbackState()),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, resolve.ErrTrackNotFound),
		errors.Is(err, resolve.ErrNoMatchFound),
		errors.Is(err, music.ErrTrackUnavailable):
		return http.StatusNotFound
	case errors.Is(err, resolve.ErrProviderUnavailable),
		errors.Is(err, resolve.ErrResolutionFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) lyric(c *gin.Context) {
	var req trackRequest
	if err := c.ShouldBind(&req); err != nil || req.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "track id required"})
		return
	}
	set := s.engine.Lyrics(c.Request.Context(), req.track())
	if len(set.Lines) == 0 {
		set.Lines = []music.LyricLine{{Time: 0, Text: "暂无歌词"}}
	}
	c.JSON(http.StatusOK, gin.H{"lines": set.Lines, "translated": set.Translated})
}

func (s *server) initialSongs(c *gin.Context) {
	tracks, err := s.catalog.InitialSongs(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"songs": tracks})
}

func (s *server) playlist(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "playlist id required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	tracks, err := s.catalog.Playlist(c.Request.Context(), id, limit, offset)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"songs": tracks})
}

func (s *server) detail(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "track id required"})
		return
	}
	nativeID, src, tagged := music.StripID(id)
	provider := s.main
	if tagged && src == music.Kuwo {
		provider = s.kuwo
	}
	t, err := provider.Detail(c.Request.Context(), nativeID)
	if err != nil {
		if errors.Is(err, music.ErrTrackUnavailable) {
			c.JSON(http.StatusNotFound, gin.H{"error": resolve.ErrTrackNotFound.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *server) clearCache(c *gin.Context) {
	s.store.Clear(c.Request.Context(), cache.Category(c.Query("category")))
	c.Status(http.StatusNoContent)
}

func (s *server) listFavorites(c *gin.Context) {
	recs, err := s.favs.All(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"favorites": recs})
}

func (s *server) putFavorite(c *gin.Context) {
	var rec favorites.Record
	if err := c.ShouldBindJSON(&rec); err != nil || rec.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "favorite id required"})
		return
	}
	if err := s.favs.Put(c.Request.Context(), &rec); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
