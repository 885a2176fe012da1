package config

// Compiled-in configuration per device ID.

const cfgPico = `
device: pico
board:
  serial:
    address: uart0
    baud: 38400
  pins:
    reset: 2
    power_down: 3
    xclk: 4
    sda: 0
    scl: 1
    uart_tx: 16
    uart_rx: 17
    button: 15
    status_led: 25
    save_led: 14
    card_detect: -1
  i2c_hz: 100000
  xclk_hz: 20000000
  frame_interval_ms: 66
camera:
  frame_store_size: 65536
  resolution: 320x240
questions:
  file: q.txt
protocol:
  power_settle_ms: 100
  mark_delay_ms: 1000
storage:
  poll_ms: 10
  stable_polls: 10
button:
  enabled: true
  debounce_ms: 50
heartbeat:
  mounted_ms: 125
  unmounted_ms: 500
`

const cfgHost = `
device: host
board:
  serial:
    address: stdio
    baud: 38400
  frame_interval_ms: 66
camera:
  frame_store_size: 100000
  resolution: 1024x768
questions:
  file: q.txt
protocol:
  power_settle_ms: 100
  mark_delay_ms: 1000
storage:
  dir: ./media
  poll_ms: 10
  stable_polls: 10
button:
  enabled: false
heartbeat:
  mounted_ms: 125
  unmounted_ms: 500
bridge:
  enabled: false
  broker: tcp://127.0.0.1:1883
  prefix: quizcam
  qos: 0
`

var embeddedConfigs = map[string][]byte{
	"pico": []byte(cfgPico),
	"host": []byte(cfgHost),
}
