// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"slices"
	"testing"
	"time"

	"ocibox/internal/inspect"
)

const podmanInspectFixture = `[
  {
    "Id": "f78aa9f62271",
    "Name": "ocibox-web",
    "Path": "/usr/sbin/nginx",
    "Args": ["-g", "daemon off;"],
    "Image": "sha256:0123abcd",
    "State": {
      "Status": "running",
      "Running": true,
      "Paused": false,
      "Restarting": false,
      "OOMKilled": false,
      "Dead": false,
      "Pid": 4242,
      "Health": {"Status": "healthy"}
    },
    "Config": {
      "User": "nginx",
      "Tty": false,
      "Cmd": ["nginx", "-g", "daemon off;"],
      "Entrypoint": ["/docker-entrypoint.sh"],
      "Env": ["PATH=/usr/bin", "NGINX_VERSION=1.25.3"],
      "Image": "registry.example.com/nginx:latest",
      "Labels": {"maintainer": "web team"},
      "WorkingDir": "/srv",
      "StopSignal": "SIGQUIT",
      "Healthcheck": {
        "Test": ["CMD-SHELL", "curl -sf localhost"],
        "Interval": 5000000000,
        "Timeout": 2000000000,
        "Retries": 5
      }
    },
    "NetworkSettings": {
      "IPAddress": "10.88.0.4",
      "Ports": {
        "80/tcp": [{"HostIp": "", "HostPort": "41873"}],
        "443/tcp": null
      }
    },
    "Mounts": [
      {
        "Type": "volume",
        "Name": "d3adb33f",
        "Source": "/var/lib/containers/storage/volumes/d3adb33f/_data",
        "Destination": "/var/lib/data",
        "Driver": "local",
        "RW": true
      },
      {
        "Type": "bind",
        "Source": "/tmp/ocibox-bind",
        "Destination": "/srv/www",
        "RW": false
      }
    ]
  }
]`

func TestDecodePodmanContainerInspect(t *testing.T) {
	insp, err := decodeContainerInspect([]byte(podmanInspectFixture))
	if err != nil {
		t.Fatalf("decodeContainerInspect returned error: %v", err)
	}

	if insp.ID != "f78aa9f62271" {
		t.Errorf("ID = %q", insp.ID)
	}
	if insp.Name != "ocibox-web" {
		t.Errorf("Name = %q", insp.Name)
	}
	if insp.ImageHash != "0123abcd" {
		t.Errorf("ImageHash = %q, want digest without sha256 prefix", insp.ImageHash)
	}
	if !insp.State.Running || insp.State.Status != "running" || insp.State.Pid != 4242 {
		t.Errorf("State = %+v", insp.State)
	}
	if insp.State.Health != inspect.Healthy {
		t.Errorf("Health = %q, want healthy", insp.State.Health)
	}

	if insp.Config.Env["NGINX_VERSION"] != "1.25.3" {
		t.Errorf("Env = %v, want NGINX_VERSION entry", insp.Config.Env)
	}
	hc := insp.Config.Healthcheck
	if hc == nil {
		t.Fatal("Healthcheck is nil")
	}
	if hc.Interval != 5*time.Second || hc.Timeout != 2*time.Second || hc.Retries != 5 {
		t.Errorf("Healthcheck = %+v", hc)
	}
	// absent start period keeps the engine default of zero
	if hc.StartPeriod != 0 {
		t.Errorf("StartPeriod = %v, want 0", hc.StartPeriod)
	}

	// the unpublished 443/tcp entry must be skipped
	if len(insp.Network.Ports) != 1 {
		t.Fatalf("Ports = %+v, want exactly the published one", insp.Network.Ports)
	}
	port := insp.Network.Ports[0]
	if port.ContainerPort != 80 || port.HostPort != 41873 || port.Protocol != inspect.TCP {
		t.Errorf("port = %+v", port)
	}

	if len(insp.Mounts) != 2 {
		t.Fatalf("Mounts = %+v", insp.Mounts)
	}
	if insp.Mounts[0].Kind != inspect.MountVolume || insp.Mounts[0].Name != "d3adb33f" {
		t.Errorf("volume mount = %+v", insp.Mounts[0])
	}
	if insp.Mounts[1].Kind != inspect.MountBind || insp.Mounts[1].RW {
		t.Errorf("bind mount = %+v", insp.Mounts[1])
	}
}

const dockerInspectFixture = `[
  {
    "Id": "77df18c31b9a",
    "Name": "/ocibox-db",
    "Path": "docker-entrypoint.sh",
    "Args": ["postgres"],
    "Image": "sha256:feedface",
    "State": {
      "Status": "running",
      "Running": true,
      "Pid": 999,
      "Healthcheck": {"Status": "starting"}
    },
    "Config": {
      "Entrypoint": "docker-entrypoint.sh",
      "Env": null,
      "Image": "postgres:16"
    },
    "NetworkSettings": {
      "IPAddress": "",
      "Ports": {}
    },
    "Mounts": []
  }
]`

func TestDecodeDockerContainerInspect(t *testing.T) {
	insp, err := decodeContainerInspect([]byte(dockerInspectFixture))
	if err != nil {
		t.Fatalf("decodeContainerInspect returned error: %v", err)
	}

	if insp.Name != "ocibox-db" {
		t.Errorf("Name = %q, want leading slash stripped", insp.Name)
	}
	if insp.State.Health != inspect.Starting {
		t.Errorf("Health = %q, want starting from the Healthcheck key", insp.State.Health)
	}
	if !slices.Equal([]string(insp.Config.Entrypoint), []string{"docker-entrypoint.sh"}) {
		t.Errorf("Entrypoint = %v, want string form normalized", insp.Config.Entrypoint)
	}
	if insp.Config.Env != nil {
		t.Errorf("Env = %v, want nil for null input", insp.Config.Env)
	}
	if len(insp.Network.Ports) != 0 {
		t.Errorf("Ports = %+v, want none", insp.Network.Ports)
	}
}

func TestDecodeImageHealthcheck(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    bool
		retries int
	}{
		{
			name: "podman top level key",
			data: `[{"Healthcheck": {"Test": ["CMD-SHELL", "true"], "Retries": 7}}]`,
			want: true, retries: 7,
		},
		{
			name: "docker config key",
			data: `[{"Config": {"Healthcheck": {"Test": ["CMD", "true"]}}}]`,
			want: true, retries: 3,
		},
		{
			name: "no healthcheck",
			data: `[{"Config": {}}]`,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc, err := decodeImageHealthcheck([]byte(tt.data))
			if err != nil {
				t.Fatalf("decodeImageHealthcheck returned error: %v", err)
			}
			if (hc != nil) != tt.want {
				t.Fatalf("healthcheck presence = %v, want %v", hc != nil, tt.want)
			}
			if hc != nil && hc.Retries != tt.retries {
				t.Errorf("Retries = %d, want %d", hc.Retries, tt.retries)
			}
		})
	}
}

func TestDecodePodInspect(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		id    string
		infra string
	}{
		{
			name:  "object with capitalized keys",
			data:  `{"Id": "p0d1d", "Name": "web-pod", "Containers": [{"Id": "infra1"}, {"Id": "member1"}]}`,
			id:    "p0d1d",
			infra: "infra1",
		},
		{
			name:  "object with lowercase keys",
			data:  `{"id": "p0d1d", "name": "web-pod", "containers": [{"id": "infra1"}]}`,
			id:    "p0d1d",
			infra: "infra1",
		},
		{
			name:  "array wrapper",
			data:  `[{"Id": "p0d1d", "Name": "web-pod", "InfraContainerID": "infra1"}]`,
			id:    "p0d1d",
			infra: "infra1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pod, err := decodePodInspect([]byte(tt.data))
			if err != nil {
				t.Fatalf("decodePodInspect returned error: %v", err)
			}
			if pod.ID != tt.id {
				t.Errorf("ID = %q, want %q", pod.ID, tt.id)
			}
			if pod.InfraContainerID != tt.infra {
				t.Errorf("InfraContainerID = %q, want %q", pod.InfraContainerID, tt.infra)
			}
		})
	}
}
