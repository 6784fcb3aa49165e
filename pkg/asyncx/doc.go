// Package asyncx provides small concurrency helpers used by the service
// layer: fire-and-forget dispatch and settled fan-out, with first-class
// context support.
//
// [Do] and [DoCtx] run work in a background goroutine without awaiting it.
// The canonical use is invite delivery, where the account record must exist
// durably whether or not the notification arrives:
//
//	asyncx.Do(func() {
//	    ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
//	    defer cancel()
//	    if err := notifier.SendInvite(ctx, email, name, token, purpose); err != nil {
//	        log.Warn().Err(err).Msg("invite delivery failed")
//	    }
//	})
//
// [AllSettled] runs a set of probes concurrently and returns one [Result]
// per probe, never short-circuiting, so a health check can report each
// dependency independently.
package asyncx
