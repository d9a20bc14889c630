package report

import (
	"context"
	"encoding/json"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/mbolis/formpipe/log"
	"github.com/mbolis/formpipe/model"
)

// Mailer delivers rendered reports. Email transport lives outside this
// module.
type Mailer interface {
	Send(to, subject, body string) error
}

// LogMailer writes deliveries to the log. Stands in until an SMTP relay is
// configured.
type LogMailer struct{}

func (LogMailer) Send(to, subject, body string) error {
	log.Infof("report to %s [%s]: %s", to, subject, body)
	return nil
}

// SendSubscriberReports builds and mails the current report of every
// pipeline with an unexpired subscriber. Meant to be invoked periodically by
// external scheduling infrastructure. Delivery is best-effort: a failed send
// is logged and the walk continues.
func SendSubscriberReports(ctx context.Context, db Querier, m Mailer, now time.Time) error {
	rows, err := db.QueryContext(ctx, `
		SELECT
			u.email,
			p.id, p.title, p.metadata, p.number_of_views
		FROM subscriber s
		INNER JOIN user u ON (s.user_id = u.id)
		INNER JOIN pipeline p ON (s.pipeline_id = p.id)
		WHERE s.expired_datetime > ?`,
		now,
	)
	if err != nil {
		return pkgerrors.Wrap(err, "report.subscribers.get")
	}
	defer rows.Close()

	type delivery struct {
		email    string
		pipeline model.Pipeline
	}
	var deliveries []delivery
	for rows.Next() {
		d := delivery{}
		var metadata string
		err = rows.Scan(&d.email, &d.pipeline.ID, &d.pipeline.Title, &metadata, &d.pipeline.NumberOfViews)
		if err != nil {
			return pkgerrors.Wrap(err, "report.subscribers.scan")
		}
		err = json.Unmarshal([]byte(metadata), &d.pipeline.Metadata)
		if err != nil {
			return pkgerrors.Wrap(err, "report.subscribers.parse_metadata")
		}
		deliveries = append(deliveries, d)
	}
	if err = rows.Err(); err != nil {
		return pkgerrors.Wrap(err, "report.subscribers")
	}

	for _, d := range deliveries {
		rep, err := Build(ctx, db, d.pipeline)
		if err != nil {
			log.Errorf("report.subscribers.build: %s", err)
			continue
		}
		body, err := json.Marshal(rep)
		if err != nil {
			log.Errorf("report.subscribers.marshal: %s", err)
			continue
		}
		err = m.Send(d.email, "Your periodic report of "+d.pipeline.Title, string(body))
		if err != nil {
			log.Errorf("report.subscribers.send: %s", err)
		}
	}
	return nil
}
