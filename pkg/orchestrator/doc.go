// Package orchestrator provides a reusable CI orchestration core that can be embedded into other Go applications.
//
// # Overview
//
// The orchestrator advances builds through their execution lifecycle and decides,
// on a status change or an inbound source-control event, which pipelines must be
// triggered next. It exposes a small REST surface: build status updates and SCM
// webhook intake.
//
// # Basic Usage
//
// Create an orchestrator programmatically:
//
//	cfg := &orchestrator.Config{
//		Server: orchestrator.ServerConfig{
//			Port:         8080,
//			ReadTimeout:  30 * time.Second,
//			WriteTimeout: 30 * time.Second,
//		},
//		Auth: orchestrator.AuthConfig{
//			APIKeys: []orchestrator.APIKey{
//				{Name: "admin", Key: "secret-key-here"},
//			},
//			BuildSecret: "build-reporting-secret",
//		},
//		SCM: orchestrator.SCMConfig{
//			Kind:  "github",
//			Token: "ghp_xxx",
//		},
//		UIURL: "https://ci.example.com",
//		Logging: orchestrator.LoggingConfig{
//			Level:  "info",
//			Format: "json",
//		},
//	}
//
//	orc, err := orchestrator.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := orc.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// # Using with Existing HTTP Server
//
// Integrate the orchestrator into an existing HTTP server:
//
//	orc, err := orchestrator.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	http.Handle("/ci/", http.StripPrefix("/ci", orc.Handler()))
//	http.HandleFunc("/custom", myHandler)
//	http.ListenAndServe(":8080", nil)
//
// # File-based Configuration
//
// Load configuration and the pipeline registry from yaml files
// (environment variables are expanded in both):
//
//	orc, err := orchestrator.NewFromConfig("configs/orchestrator.yaml", "configs/registry.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// The registry file declares the pipelines, their jobs and workflow
// graphs, and the cross-pipeline triggers the orchestrator serves:
//
//	pipelines:
//	  - id: 5
//	    scm_uri: "github.com:org/app:main"
//	    branch: main
//	    token: ${APP_SCM_TOKEN}
//	    workflow:
//	      edges:
//	        - src: "~commit"
//	          dest: main
//	    jobs:
//	      - id: 1
//	        name: main
//	triggers:
//	  - src: "~sd@5:main"
//	    dest: "~sd@9:deploy"
//
// # Direct Programmatic Access
//
// Drive the core without HTTP:
//
//	orc, err := orchestrator.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	build, err := orc.Lifecycle().UpdateBuild(ctx, lifecycle.UpdateRequest{
//		BuildID:   42,
//		Requester: models.BuildRequester(42),
//		Status:    models.StatusSuccess,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("build %d is now %s\n", build.ID, build.Status)
package orchestrator
