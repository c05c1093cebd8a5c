// Copyright 2026 The Taskmill Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package worker provides the worker runtime for executing workflows
// and activities.
//
// Workers connect to the orchestrator via NATS, bind a named task queue,
// and poll it for workflow and activity tasks.
//
// # Creating a Worker
//
//	nc, err := nats.Connect("nats://localhost:4222")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	w, err := worker.NewWorker(nc, &worker.Options{
//		TaskQueue:  "payments",
//		MaxWorkers: 8,
//		Logger:     slog.Default(),
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Registering Workflows and Activities
//
// Register everything before running the worker:
//
//	w.RegisterWorkflow(SettleOrder)
//	w.RegisterActivity(ChargeCard,
//		worker.WithBlocking(),
//		worker.WithDefaultTimeout(30*time.Second))
//
// Activities doing blocking I/O must be registered with WithBlocking so
// they run on the bounded pool; non-blocking activities run inline on
// the dispatch loop. Both kinds can be registered on the same worker;
// the flag is inspected per activity at dispatch time.
//
// Activities sharing a resource (a connection pool, an API session) are
// registered as methods on a bound instance:
//
//	svc := NewBillingService(pool)
//	w.RegisterActivity(svc.Charge, worker.WithBlocking(), worker.WithInstance(svc))
//
// The instance is created once at startup and closed exactly once during
// drain when it implements io.Closer; it is never re-created per task.
//
// # Running and Graceful Shutdown
//
// Run blocks until the context is canceled:
//
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//
//	go func() {
//		<-shutdownSignal
//		cancel()
//	}()
//
//	if err := w.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// On cancellation the worker drains: polling stops, in-flight tasks
// finish, shared resources are released, and Run returns.
//
// # Scaling
//
// Run more worker processes to increase throughput. Workers on the same
// task queue compete for tasks; tasks for one correlation id are never
// assigned to two workers at once.
package worker
