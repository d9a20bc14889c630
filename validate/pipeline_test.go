package validate

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mbolis/formpipe/model"
)

func TestRandomSlug(t *testing.T) {
	slug := RandomSlug()
	require.Len(t, slug, slugLength)
	require.Regexp(t, regexp.MustCompile("^[a-z]+$"), slug)
	require.NotEqual(t, slug, RandomSlug())
}

func TestPipelinePrivateRequiresPassword(t *testing.T) {
	p := model.Pipeline{
		IsPrivate:                   true,
		QuestionsRespondingDuration: 10,
	}
	err := Pipeline(p)
	require.Error(t, err)
	require.Contains(t, AsMap(err), "password")

	p.Password = "s3cret"
	require.NoError(t, Pipeline(p))
}

func TestPipelineStopBeforeStart(t *testing.T) {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	stop := start.Add(-time.Hour)
	err := Pipeline(model.Pipeline{
		QuestionsRespondingDuration: 10,
		StartDatetime:               &start,
		StopDatetime:                &stop,
	})
	require.Error(t, err)
	require.Contains(t, AsMap(err), "stop_datetime")
}

func TestPipelineAccess(t *testing.T) {
	public := model.Pipeline{}
	require.NoError(t, PipelineAccess(public, ""))

	private := model.Pipeline{IsPrivate: true, Password: "s3cret"}

	err := PipelineAccess(private, "")
	var authErr *AuthorizationError
	require.ErrorAs(t, err, &authErr)

	err = PipelineAccess(private, "wrong")
	require.ErrorAs(t, err, &authErr)

	require.NoError(t, PipelineAccess(private, "s3cret"))
}

func TestPipelineWindow(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	before := now.Add(-time.Hour)
	after := now.Add(time.Hour)

	require.NoError(t, PipelineWindow(model.Pipeline{}, now), "unbounded")
	require.NoError(t, PipelineWindow(model.Pipeline{StartDatetime: &before, StopDatetime: &after}, now))

	err := PipelineWindow(model.Pipeline{StartDatetime: &after}, now)
	require.Error(t, err, "not started yet")

	err = PipelineWindow(model.Pipeline{StopDatetime: &before}, now)
	require.Error(t, err, "already over")
}
