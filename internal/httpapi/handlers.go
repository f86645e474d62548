package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/MimeLyc/latexmt-web/internal/apperr"
	"github.com/MimeLyc/latexmt-web/internal/service"
	"github.com/MimeLyc/latexmt-web/internal/translator"
)

const (
	jobsDisabledMsg = "Jobs are not enabled"
	outcomeHeader   = "X-Translate-Outcome"
)

func (s *Server) handleTranslate(c *gin.Context) {
	req, err := textRequest(c)
	if err != nil {
		s.writeAppError(c, err)
		return
	}

	res := s.single.Translate(c.Request.Context(), req)
	c.Header(outcomeHeader, string(res.Outcome))
	if res.Outcome == service.OutcomeFailed {
		status := http.StatusBadGateway
		if apperr.Is(res.Err, apperr.KindValidation) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{
			"error":  publicMessage(res.Err),
			"output": res.Text,
		})
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(res.Text))
}

func textRequest(c *gin.Context) (service.TextRequest, error) {
	text, ok := c.GetPostForm("input_text")
	if !ok {
		return service.TextRequest{}, apperr.Validation("input_text is required")
	}

	src := strings.TrimSpace(c.PostForm("src_lang"))
	if !strings.EqualFold(src, service.AutoDetect) {
		norm, err := translator.NormalizeLang(src)
		if err != nil {
			return service.TextRequest{}, apperr.Validation("src_lang: %v", err)
		}
		src = norm
	}
	tgt, err := translator.NormalizeLang(c.PostForm("tgt_lang"))
	if err != nil {
		return service.TextRequest{}, apperr.Validation("tgt_lang: %v", err)
	}
	backend := c.PostForm("backend")
	if !translator.KnownBackend(backend) {
		return service.TextRequest{}, apperr.Validation("unknown backend %q", backend)
	}

	return service.TextRequest{
		Text:        text,
		SrcLang:     src,
		TgtLang:     tgt,
		Glossary:    c.PostForm("glossary"),
		Backend:     backend,
		Model:       c.PostForm("model"),
		InputPrefix: c.PostForm("input_prefix"),
		Token:       c.PostForm("token"),
		Placeholder: c.PostForm("placeholder"),
	}, nil
}

func (s *Server) handleListJobs(c *gin.Context) {
	list, err := s.jobs.List(c.Request.Context())
	if err != nil {
		s.writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleSubmitJob(c *gin.Context) {
	header, err := c.FormFile("document")
	if err != nil {
		writeError(c, http.StatusBadRequest, "document is required")
		return
	}
	document, err := header.Open()
	if err != nil {
		writeError(c, http.StatusBadRequest, "cannot read document")
		return
	}
	defer document.Close()

	job, err := s.jobs.Submit(c.Request.Context(), service.Submission{
		Filename:    header.Filename,
		Document:    document,
		SrcLang:     c.PostForm("src_lang"),
		TgtLang:     c.PostForm("tgt_lang"),
		Glossary:    c.PostForm("glossary"),
		Backend:     c.PostForm("backend"),
		Model:       c.PostForm("model"),
		InputPrefix: c.PostForm("input_prefix"),
		Token:       c.PostForm("token"),
		Placeholder: c.PostForm("placeholder"),
	})
	if err != nil {
		s.writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) handleGetJob(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	job, err := s.jobs.Get(c.Request.Context(), id)
	if err != nil {
		s.writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) handleDeleteJob(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	if err := s.jobs.Delete(c.Request.Context(), id); err != nil {
		s.writeAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDownload(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	dl, err := s.jobs.Download(c.Request.Context(), id)
	if err != nil {
		s.writeAppError(c, err)
		return
	}

	c.Header("Content-Type", dl.ContentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", dl.Name, url.PathEscape(dl.Name)))
	c.Header("Cache-Control", "no-store")
	c.Status(http.StatusOK)
	if err := dl.WriteTo(c.Writer); err != nil {
		_ = c.Error(err)
	}
}

func jobID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, http.StatusBadRequest, "invalid job id")
		return 0, false
	}
	return id, true
}

func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindDisabled:
		return http.StatusForbidden
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage drops the kind prefix and cause chain of typed errors.
func publicMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

func (s *Server) writeAppError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	writeError(c, status, publicMessage(err))
}

func writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{
		"error": msg,
	})
}
