// Package client provides a Go client for the tripflow planning API.
//
// This package allows applications to submit planning requests, poll task
// progress and fetch the resulting reports without hand-rolling HTTP calls.
//
// # Quick Start
//
// Create a client, submit a request and wait for the plan:
//
//	c := client.New(client.Config{BaseURL: "http://localhost:8000"})
//
//	taskID, err := c.SubmitPlan(ctx, client.PlanRequest{
//	    Destination: "Beijing",
//	    StartDate:   "2026-09-10",
//	    EndDate:     "2026-09-14",
//	    BudgetRange: "mid-range",
//	    GroupSize:   2,
//	    Interests:   []string{"history", "food"},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	task, err := c.WaitForResult(ctx, taskID, 2*time.Second)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(task.Result.Content)
//
// # Pipelines
//
// [Client.SubmitPlan] runs the full multi-agent pipeline.
// [Client.SubmitSimplePlan] runs the cheaper single-prompt pipeline and
// [Client.SubmitMockPlan] returns a canned plan, useful for integration
// tests against a running server.
//
// # Error Handling
//
// All methods return errors that can be inspected with [errors.Is]:
//
//   - [ErrNotFound]: the task does not exist.
//   - [ErrNotValid]: the request was rejected by the server.
//   - [ErrRateLimited]: the client hit the server rate limit.
//   - [ErrTaskFailed]: returned by [Client.WaitForResult] when the task
//     finished without a result.
package client
