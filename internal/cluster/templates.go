package cluster

// These templates render the fixed vocabulary of job specs the driver
// supports. Each is a minimal HCL job description naming the image,
// callback, and resource hints the control plane fills in — the cluster
// scheduler fills in everything else from its own defaults.

const trainJobTemplate = `
job "train-{{.ModelIdentity}}" {
  type = "batch"
  group "train" {
    task "train" {
      driver = "docker"
      config {
        image = "{{.Image}}"
      }
      env {
        MODEL_IDENTITY    = "{{.ModelIdentity}}"
        CALLBACK_URL      = "{{.CallbackURL}}"
        TASK_RUNNER_TOKEN = "{{.TaskRunnerToken}}"
      }
      resources {
        memory = {{.MemoryHintMB}}
      }
    }
  }
}
`

const retrainJobTemplate = `
job "retrain-{{.ModelIdentity}}" {
  type = "batch"
  group "retrain" {
    task "retrain" {
      driver = "docker"
      config {
        image = "{{.Image}}"
      }
      env {
        MODEL_IDENTITY    = "{{.ModelIdentity}}"
        CALLBACK_URL      = "{{.CallbackURL}}"
        TASK_RUNNER_TOKEN = "{{.TaskRunnerToken}}"
      }
      resources {
        memory = {{.MemoryHintMB}}
      }
    }
  }
}
`

const deployJobTemplate = `
job "deploy-{{.DeploymentName}}" {
  type = "service"
  group "deploy" {
    count = {{if .Autoscale}}2{{else}}1{{end}}
    task "runtime" {
      driver = "docker"
      config {
        image = "{{.Image}}"
      }
      env {
        MODEL_ID          = "{{.ModelID}}"
        MODEL_IDENTITY    = "{{.ModelIdentity}}"
        MODEL_TYPE        = "{{.ModelType}}"
        DEPLOYMENT_ID     = "{{.DeploymentID}}"
        CALLBACK_URL      = "{{.CallbackURL}}"
        TASK_RUNNER_TOKEN = "{{.TaskRunnerToken}}"
      }
      resources {
        memory = {{.MemoryHintMB}}
      }
    }
  }
}
`

const undeployJobTemplate = `
job "undeploy-{{.DeploymentName}}" {
  type = "batch"
  group "undeploy" {
    task "undeploy" {
      driver = "docker"
      config {
        image = "{{.Image}}"
      }
      env {
        DEPLOYMENT_NAME = "{{.DeploymentName}}"
      }
    }
  }
}
`

const syntheticJobTemplate = `
job "synthetic-{{.ModelIdentity}}" {
  type = "batch"
  group "synthetic" {
    task "generate" {
      driver = "docker"
      config {
        image = "{{.Image}}"
      }
      env {
        MODEL_IDENTITY    = "{{.ModelIdentity}}"
        CALLBACK_URL      = "{{.CallbackURL}}"
        TASK_RUNNER_TOKEN = "{{.TaskRunnerToken}}"
      }
    }
  }
}
`
