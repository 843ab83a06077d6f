package control

import (
	"context"
	"net/http"
	"time"
)

// notifyHibernate best-effort POSTs /hibernate to the agent's pod
// endpoint. Failure is logged and otherwise ignored: the pod may
// already be unreachable, and the hibernate sequence proceeds to
// terminate it regardless.
func (c *Core) notifyHibernate(ctx context.Context, endpoint string) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+endpoint+"/hibernate", nil)
	if err != nil {
		return
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("endpoint", endpoint).Msg("hibernate: pod notify failed, continuing")
		return
	}
	defer resp.Body.Close()
}
