package api

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"feed-narrator/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/feeds"
)

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// processHandler starts a run in the background, or waits for it with ?wait=true.
func (s *Server) processHandler(c *gin.Context) {
	if !s.begin() {
		c.JSON(http.StatusConflict, gin.H{"error": ErrRunInProgress.Error()})
		return
	}

	if wait, _ := strconv.ParseBool(c.Query("wait")); wait {
		report, err := s.execute(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":  err.Error(),
				"report": report,
			})
			return
		}
		c.JSON(http.StatusOK, report)
		return
	}

	go func() {
		if _, err := s.execute(context.Background()); err != nil {
			s.log.WithError(err).Warn("background run failed")
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"message": "run started",
	})
}

func (s *Server) getStatusHandler(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := gin.H{
		"isProcessing": s.isProcessing,
		"state":        s.state,
		"lastReport":   s.lastReport,
	}
	if !s.lastProcessed.IsZero() {
		resp["lastProcessed"] = s.lastProcessed.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) listDigestsHandler(c *gin.Context) {
	digests, err := s.opts.Store.Digests()
	if err != nil {
		s.log.WithError(err).Error("list digests")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list digests"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"digests": digests})
}

// deleteDigestHandler removes the text and audio of one digest.
func (s *Server) deleteDigestHandler(c *gin.Context) {
	prefix := c.Param("prefix")
	if _, _, _, ok := storage.ParseDigestName(prefix + storage.TextExt); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid digest name"})
		return
	}

	var deleted []string
	for _, ext := range []string{storage.TextExt, storage.AudioExt} {
		err := s.opts.Store.DeleteFile(prefix + ext)
		switch {
		case err == nil:
			deleted = append(deleted, prefix+ext)
		case errors.Is(err, fs.ErrNotExist):
		default:
			s.log.WithError(err).WithField("file", prefix+ext).Warn("delete digest file")
		}
	}

	if len(deleted) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "digest not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// serveFileHandler serves digest files with the given extension from the store.
func (s *Server) serveFileHandler(ext, contentType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		filename := c.Param("filename")
		if !strings.HasSuffix(filename, ext) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported file type"})
			return
		}

		path, err := s.opts.Store.Path(filename)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file name"})
			return
		}
		exists, err := s.opts.Store.FileExists(filename)
		if err != nil || !exists {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}

		c.Header("Content-Type", contentType)
		c.Header("Content-Disposition", "inline")
		c.File(path)
	}
}

// podcastFeedHandler publishes digests that have audio as a podcast RSS feed.
func (s *Server) podcastFeedHandler(c *gin.Context) {
	digests, err := s.opts.Store.Digests()
	if err != nil {
		s.log.WithError(err).Error("list digests")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list digests"})
		return
	}

	base := strings.TrimSuffix(s.opts.BaseURL, "/")
	feed := &feeds.Feed{
		Title:       s.opts.SiteName + " extracts",
		Link:        &feeds.Link{Href: base + "/feed.xml"},
		Description: "Narrated daily extracts of " + s.opts.SiteName,
		Created:     time.Now(),
	}

	for _, d := range digests {
		if d.AudioFile == "" {
			continue
		}
		item := &feeds.Item{
			Id:      d.Prefix,
			Title:   s.opts.SiteName + " extracts " + d.Date.Format("2006-01-02"),
			Created: d.Date,
			Enclosure: &feeds.Enclosure{
				Url:    base + "/audio/" + d.AudioFile,
				Length: strconv.FormatInt(d.AudioSize, 10),
				Type:   "audio/wav",
			},
		}
		if d.TextFile != "" {
			item.Link = &feeds.Link{Href: base + "/text/" + d.TextFile}
			item.Description = s.summaryOf(d.TextFile)
		}
		feed.Items = append(feed.Items, item)
	}

	rss, err := feed.ToRss()
	if err != nil {
		s.log.WithError(err).Error("render podcast feed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render feed"})
		return
	}
	c.Data(http.StatusOK, "application/rss+xml; charset=utf-8", []byte(rss))
}

// summaryOf returns the intro paragraph of a digest's text.
func (s *Server) summaryOf(textFile string) string {
	data, err := s.opts.Store.ReadFile(textFile)
	if err != nil {
		return ""
	}
	intro, _, _ := strings.Cut(string(data), "\n\n")
	return intro
}
